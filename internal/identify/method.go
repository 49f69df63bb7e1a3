// Package identify resolves which participant an organizer is dealing with.
// Each Method is one way of producing a user; a Selector mounts several side
// by side and keeps at most one selection.
package identify

import (
	"context"
	"errors"

	"hackops/internal/apiclient"
)

// Method identifiers.
const (
	MethodSearch = "search"
	MethodTag    = "nfc"
)

var (
	ErrNoSelection     = errors.New("identify: no user picked")
	ErrNotFound        = errors.New("identify: user not among search results")
	ErrEmptyTag        = errors.New("identify: no data found on tag")
	ErrUnrecognizedTag = errors.New("identify: tag does not hold a user url")
	ErrUnknownMethod   = errors.New("identify: unknown method")
	ErrDisabled        = errors.New("identify: selection disabled")
)

// Input carries what the operator supplied to a method. Methods ignore the
// fields they do not use.
type Input struct {
	Query  string `json:"query"`
	UserID int    `json:"user_id"`
	// Supported is the caller's cached tag-support answer. Nil asks the reader.
	Supported *bool `json:"-"`
}

// Method produces a user, or an error and no user.
type Method interface {
	ID() string
	Name() string
	Identify(ctx context.Context, in Input) (apiclient.User, error)
}
