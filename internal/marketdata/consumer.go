package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type priceEvent struct {
	Pair      string `json:"pair"`
	Price     string `json:"price"`
	Timestamp int64  `json:"ts"`
}

// FeedConsumer reads price ticks from Kafka into a Feed.
type FeedConsumer struct {
	reader *kafkago.Reader
	feed   *Feed
	logger *slog.Logger
}

func NewFeedConsumer(brokers []string, topic, groupID string, feed *Feed, logger *slog.Logger) *FeedConsumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		CommitInterval: time.Second,
		StartOffset:    kafkago.LastOffset,
		MaxBytes:       10e6,
	})
	return &FeedConsumer{reader: reader, feed: feed, logger: logger.With("component", "price_feed")}
}

// Run blocks until ctx is cancelled. Malformed messages are logged and
// skipped.
func (c *FeedConsumer) Run(ctx context.Context) error {
	c.logger.Info("price feed consumer started", "topic", c.reader.Config().Topic)
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read price message: %w", err)
		}
		if err := c.Handle(msg); err != nil {
			c.logger.Warn("dropping price message", "key", string(msg.Key), "error", err)
		}
	}
}

func (c *FeedConsumer) Handle(msg kafkago.Message) error {
	return handlePrice(c.feed, msg)
}

func handlePrice(feed *Feed, msg kafkago.Message) error {
	var evt priceEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return err
	}
	if evt.Pair == "" {
		return errors.New("missing pair")
	}
	price, err := decimal.NewFromString(evt.Price)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", evt.Price, err)
	}
	at := msg.Time
	if evt.Timestamp > 0 {
		at = time.UnixMilli(evt.Timestamp)
	}
	feed.Set(evt.Pair, price, at)
	return nil
}

func (c *FeedConsumer) Close() error {
	return c.reader.Close()
}
