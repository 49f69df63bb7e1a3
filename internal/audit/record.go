// Package audit keeps a durable trail of marked attendance, including check-ins
// that skipped tag verification on hardware without tag support.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackops/internal/logging"
	"hackops/internal/queue"
)

// MessageType tags audit records on the queue.
const MessageType = "checkin.audit"

// Record describes one successful mark-attendance.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    int       `json:"user_id"`
	EventID   int       `json:"event_id"`
	Verified  bool      `json:"verified"`
	Bypassed  bool      `json:"bypassed"`
	TagURL    string    `json:"tag_url,omitempty"`
	MarkedAt  time.Time `json:"marked_at"`
}

// Publisher sends records to the worker through a queue.
type Publisher struct {
	q   queue.Queue
	log *zap.Logger
}

// NewPublisher returns a publisher on q.
func NewPublisher(q queue.Queue, log *zap.Logger) *Publisher {
	return &Publisher{q: q, log: logging.OrNop(log)}
}

// Publish fills in ID and MarkedAt when empty and enqueues rec.
func (p *Publisher) Publish(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	msg, err := queue.NewMessage(MessageType, rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	if err := p.q.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	p.log.Debug("audit record published",
		zap.String("id", rec.ID), zap.Int("user_id", rec.UserID), zap.Bool("bypassed", rec.Bypassed))
	return nil
}
