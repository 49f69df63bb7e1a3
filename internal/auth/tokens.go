package auth

import (
	"context"
	"sync"
	"time"
)

// StaticToken is a fixed bearer token for the remote API.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// SignedTokenSource mints remote API tokens on demand and reuses each one
// until shortly before it expires.
type SignedTokenSource struct {
	issuer  *Issuer
	subject string
	role    string
	ttl     time.Duration
	skew    time.Duration

	mu    sync.Mutex
	token string
	exp   time.Time
}

// NewSignedTokenSource returns a source minting tokens for subject.
func NewSignedTokenSource(issuer *Issuer, subject, role string, ttl time.Duration) *SignedTokenSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	skew := 30 * time.Second
	if skew > ttl/2 {
		skew = ttl / 2
	}
	return &SignedTokenSource{issuer: issuer, subject: subject, role: role, ttl: ttl, skew: skew}
}

func (s *SignedTokenSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.issuer.now().Before(s.exp.Add(-s.skew)) {
		return s.token, nil
	}
	token, exp, err := s.issuer.Mint(s.subject, s.role, KindAccess, s.ttl)
	if err != nil {
		return "", err
	}
	s.token, s.exp = token, exp
	return token, nil
}
