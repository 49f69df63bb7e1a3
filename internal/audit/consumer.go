package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hackops/internal/logging"
	"hackops/internal/queue"
)

// Sink stores decoded records.
type Sink interface {
	Insert(ctx context.Context, rec Record) error
}

// Consumer drains audit messages from a queue into a Sink.
type Consumer struct {
	q    queue.Queue
	sink Sink
	log  *zap.Logger
}

// NewConsumer wires q to sink.
func NewConsumer(q queue.Queue, sink Sink, log *zap.Logger) *Consumer {
	return &Consumer{q: q, sink: sink, log: logging.OrNop(log)}
}

// Run consumes until ctx ends. Failed messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	for msg := range messages {
		if err := c.Handle(ctx, msg); err != nil {
			c.log.Warn("audit message failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return nil
}

// Handle stores one message. Messages of other types are ignored.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != MessageType {
		c.log.Debug("skipping message", zap.String("type", msg.Type))
		return nil
	}
	var rec Record
	if err := msg.Decode(&rec); err != nil {
		return fmt.Errorf("decode audit record: %w", err)
	}
	if err := c.sink.Insert(ctx, rec); err != nil {
		return fmt.Errorf("store audit record %s: %w", rec.ID, err)
	}
	c.log.Info("audit record stored",
		zap.String("id", rec.ID),
		zap.Int("user_id", rec.UserID),
		zap.Int("event_id", rec.EventID),
		zap.Bool("bypassed", rec.Bypassed))
	return nil
}
