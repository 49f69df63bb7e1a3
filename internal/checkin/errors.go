package checkin

import (
	"errors"
	"fmt"

	"hackops/internal/apiclient"
	"hackops/internal/identify"
	"hackops/internal/nfc"
)

// Failure classes. Every step error wraps exactly one of them.
var (
	ErrUnsupported          = errors.New("tag support is not available on this device")
	ErrTransactionFailed    = errors.New("tag transaction failed")
	ErrMalformedTag         = errors.New("tag does not hold a user url")
	ErrVerificationMismatch = errors.New("tag belongs to a different user")
	ErrRemote               = errors.New("remote request failed")
)

// Precondition errors.
var (
	ErrNoUser        = errors.New("no user selected")
	ErrNotVerified   = errors.New("tag not verified")
	ErrAlreadyMarked = errors.New("attendance already marked")
	ErrBusy          = errors.New("another step is in progress")
	ErrUserChanged   = errors.New("selected user changed during the step")
	ErrInvalidEvent  = errors.New("event id must be positive")
	ErrClosed        = errors.New("session closed")
)

// Registry errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotOwner        = errors.New("session belongs to another operator")
)

// Kind names the class of err for user-visible reports. It accepts both
// step errors and raw transport, identification or remote errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupported), errors.Is(err, nfc.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrMalformedTag), errors.Is(err, nfc.ErrNoURI),
		errors.Is(err, identify.ErrEmptyTag), errors.Is(err, identify.ErrUnrecognizedTag):
		return "malformed_tag"
	case errors.Is(err, ErrTransactionFailed), errors.Is(err, nfc.ErrTransaction), errors.Is(err, nfc.ErrClosed):
		return "transaction_failed"
	case errors.Is(err, ErrVerificationMismatch):
		return "verification_mismatch"
	case errors.Is(err, ErrNoUser):
		return "no_user"
	case errors.Is(err, ErrNotVerified):
		return "not_verified"
	case errors.Is(err, ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, ErrBusy), errors.Is(err, identify.ErrDisabled):
		return "busy"
	case errors.Is(err, ErrUserChanged):
		return "user_changed"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, identify.ErrNoSelection),
		errors.Is(err, identify.ErrUnknownMethod):
		return "invalid_request"
	case errors.Is(err, identify.ErrNotFound), errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrNotOwner):
		return "forbidden"
	case errors.Is(err, ErrRemote), isRemote(err):
		return "remote"
	}
	return "internal"
}

func isRemote(err error) bool {
	var apiErr *apiclient.Error
	return errors.As(err, &apiErr) ||
		errors.Is(err, apiclient.ErrServerURLUnset) ||
		errors.Is(err, apiclient.ErrNotAuthenticated)
}

// tagError wraps a transport error in its failure class.
func tagError(err error) error {
	class := ErrTransactionFailed
	switch Kind(err) {
	case "unsupported":
		class = ErrUnsupported
	case "malformed_tag":
		class = ErrMalformedTag
	}
	return wrap(class, err)
}

func remoteError(err error) error {
	return wrap(ErrRemote, err)
}

// selectError classifies a failed identification. Tag and remote failures
// get their class; input errors pass through.
func selectError(err error) error {
	switch Kind(err) {
	case "unsupported", "malformed_tag", "transaction_failed":
		return tagError(err)
	case "remote", "internal":
		return remoteError(err)
	}
	return err
}

func wrap(class, err error) error {
	if errors.Is(err, class) {
		return err
	}
	return fmt.Errorf("%w: %w", class, err)
}
