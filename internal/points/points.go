// Package points grants or deducts participant points through the remote API.
package points

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hackops/internal/apiclient"
	"hackops/internal/logging"
)

var (
	ErrInvalidUser   = errors.New("user id required")
	ErrInvalidAmount = errors.New("amount must be non-zero")
	ErrNoReason      = errors.New("reason required")
)

// Awarder calls the remote award endpoint.
type Awarder interface {
	AwardPoints(ctx context.Context, req apiclient.AwardRequest) error
}

// Invalidator drops cached user data.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int)
}

// Service validates and forwards awards.
type Service struct {
	remote Awarder
	dir    Invalidator
	log    *zap.Logger
}

// NewService creates a service. dir may be nil.
func NewService(remote Awarder, dir Invalidator, log *zap.Logger) *Service {
	return &Service{remote: remote, dir: dir, log: logging.OrNop(log)}
}

// Award grants amount points to userID. Negative amounts deduct.
func (s *Service) Award(ctx context.Context, req apiclient.AwardRequest) error {
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case req.UserID <= 0:
		return ErrInvalidUser
	case req.Amount == 0:
		return ErrInvalidAmount
	case req.Reason == "":
		return ErrNoReason
	}
	if err := s.remote.AwardPoints(ctx, req); err != nil {
		return fmt.Errorf("award points to user %d: %w", req.UserID, err)
	}
	if s.dir != nil {
		s.dir.Invalidate(ctx, req.UserID)
	}
	s.log.Info("points awarded",
		zap.Int("user_id", req.UserID), zap.Int("amount", req.Amount), zap.String("reason", req.Reason))
	return nil
}

// IsInvalid reports whether err is a validation failure.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidUser) || errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrNoReason)
}
