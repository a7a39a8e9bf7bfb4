// Package notify delivers position-close events. Sinks are injected into the
// risk engine; delivery is best effort and never blocks a close.
package notify

import (
	"context"
	"errors"
	"time"

	"lv-risk/internal/model"
	"lv-risk/internal/profit"
	"lv-risk/internal/types"
)

type Event struct {
	PositionID string            `json:"position_id"`
	Reference  string            `json:"reference"`
	AccountID  string            `json:"account_id"`
	UserID     string            `json:"user_id"`
	Pair       string            `json:"pair"`
	Side       types.Side        `json:"side"`
	ClosePrice string            `json:"close_price"`
	Profit     string            `json:"profit"`
	Reason     types.CloseReason `json:"reason"`
	ClosedAt   time.Time         `json:"closed_at"`
}

// FromClose builds the event for a position that has just been closed.
func FromClose(pos model.Position, res profit.Result) Event {
	evt := Event{
		PositionID: pos.ID,
		Reference:  pos.Reference,
		AccountID:  pos.AccountID,
		UserID:     pos.UserID,
		Pair:       pos.Pair,
		Side:       pos.Side,
		Profit:     res.Formatted,
		Reason:     pos.CloseReason,
	}
	if pos.ClosePrice != nil {
		evt.ClosePrice = pos.ClosePrice.String()
	}
	if pos.ClosedAt != nil {
		evt.ClosedAt = pos.ClosedAt.UTC()
	}
	return evt
}

type Sink interface {
	PositionClosed(ctx context.Context, evt Event) error
}

type multi []Sink

// Multi fans an event out to every sink. All sinks are attempted; their
// errors are joined.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) PositionClosed(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range m {
		if err := s.PositionClosed(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) PositionClosed(context.Context, Event) error { return nil }
