// Package nfc drives a physical NFC reader: one exclusive transaction per
// presented tag, with the reader released on every exit path.
package nfc

import (
	"context"
	"errors"
)

var (
	ErrUnsupported = errors.New("nfc: not supported on this device")
	ErrTransaction = errors.New("nfc: tag transaction failed")
	ErrNoURI       = errors.New("nfc: no uri record on tag")
	ErrClosed      = errors.New("nfc: transport closed")
)

// Device is a reader backend.
type Device interface {
	// Start prepares the reader. It is called once before first use.
	Start(ctx context.Context) error
	// Supported reports whether a usable reader is present.
	Supported(ctx context.Context) (bool, error)
	// Connect blocks until a tag is presented or ctx is done and returns an
	// exclusive handle to it.
	Connect(ctx context.Context) (Tag, error)
	// Close frees the reader.
	Close() error
}

// Tag is an exclusive handle on a presented tag.
type Tag interface {
	ReadNDEF(ctx context.Context) ([]byte, error)
	WriteNDEF(ctx context.Context, msg []byte) error
	Release() error
}

// Unavailable is the device used on hardware without a reader.
type Unavailable struct{}

func (Unavailable) Start(context.Context) error { return nil }

func (Unavailable) Supported(context.Context) (bool, error) { return false, nil }

func (Unavailable) Connect(context.Context) (Tag, error) { return nil, ErrUnsupported }

func (Unavailable) Close() error { return nil }
