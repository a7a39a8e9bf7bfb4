package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrQueueFull = errors.New("notification queue full")

// Publisher delivers one event to an external system.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Queue decouples delivery from the close path. PositionClosed never blocks;
// Run drains the queue into the publisher.
type Queue struct {
	ch      chan Event
	pub     Publisher
	logger  *slog.Logger
	timeout time.Duration
}

func NewQueue(size int, pub Publisher, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{ch: make(chan Event, size), pub: pub, logger: logger, timeout: 5 * time.Second}
}

func (q *Queue) PositionClosed(_ context.Context, evt Event) error {
	select {
	case q.ch <- evt:
		return nil
	default:
		q.logger.Warn("notification dropped", "position_id", evt.PositionID, "reason", evt.Reason)
		return ErrQueueFull
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// Run delivers events until ctx is cancelled, then flushes what is already
// queued with a bounded deadline.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case evt := <-q.ch:
			q.deliver(ctx, evt)
		case <-ctx.Done():
			q.flush()
			return
		}
	}
}

func (q *Queue) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	for {
		select {
		case evt := <-q.ch:
			q.deliver(ctx, evt)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, evt Event) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := q.pub.Publish(ctx, evt); err != nil {
		q.logger.Error("notification delivery failed", "position_id", evt.PositionID, "error", err)
	}
}
