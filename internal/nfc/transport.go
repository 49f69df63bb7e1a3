package nfc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hackops/internal/logging"
	"hackops/internal/ndef"
)

// Observer receives the outcome of every transaction attempt.
type Observer func(op, result string, elapsed time.Duration)

// Transport serializes tag transactions on a single Device. It is meant to
// be shared process-wide: Start it once, Close it on shutdown.
type Transport struct {
	dev     Device
	log     *zap.Logger
	observe Observer

	// lock admits one transaction at a time; waiting callers honor ctx.
	lock chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc // cancels the in-flight transaction
}

// NewTransport wraps dev.
func NewTransport(dev Device, log *zap.Logger) *Transport {
	return &Transport{
		dev:  dev,
		log:  logging.OrNop(log).Named("nfc"),
		lock: make(chan struct{}, 1),
	}
}

// WithObserver registers a transaction observer.
func (t *Transport) WithObserver(o Observer) *Transport {
	t.observe = o
	return t
}

// Start initializes the device. Repeated calls are no-ops.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.started {
		return nil
	}
	if err := t.dev.Start(ctx); err != nil {
		return fmt.Errorf("nfc start: %w", err)
	}
	t.started = true
	return nil
}

// IsSupported queries the device. Errors count as unsupported.
func (t *Transport) IsSupported(ctx context.Context) bool {
	ok, err := t.dev.Supported(ctx)
	if err != nil {
		t.log.Warn("support query failed", zap.Error(err))
		return false
	}
	return ok
}

// Write stores url on the next presented tag as a single URI record.
func (t *Transport) Write(ctx context.Context, url string) error {
	msg, err := ndef.EncodeURI(url)
	if err != nil {
		return err
	}
	return t.transact(ctx, "write", func(ctx context.Context, tag Tag) error {
		return tag.WriteNDEF(ctx, msg)
	})
}

// Read returns the first URI stored on the next presented tag.
func (t *Transport) Read(ctx context.Context) (string, error) {
	var url string
	err := t.transact(ctx, "read", func(ctx context.Context, tag Tag) error {
		msg, err := tag.ReadNDEF(ctx)
		if err != nil {
			return err
		}
		var ok bool
		if url, ok = ndef.DecodeURI(msg); !ok {
			return ErrNoURI
		}
		return nil
	})
	return url, err
}

// WriteURL is Write reduced to a success flag.
func (t *Transport) WriteURL(ctx context.Context, url string) bool {
	return t.Write(ctx, url) == nil
}

// ReadURL is Read reduced to an optional result.
func (t *Transport) ReadURL(ctx context.Context) (string, bool) {
	url, err := t.Read(ctx)
	return url, err == nil
}

// Close cancels any in-flight transaction and releases the device.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	t.lock <- struct{}{}
	defer func() { <-t.lock }()
	return t.dev.Close()
}

func (t *Transport) transact(ctx context.Context, op string, fn func(context.Context, Tag) error) (err error) {
	begin := time.Now()
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, ErrUnsupported):
			result = "unsupported"
		case errors.Is(err, ErrNoURI):
			result = "no_uri"
		case err != nil:
			result = "failed"
		}
		if t.observe != nil {
			t.observe(op, result, time.Since(begin))
		}
		if err != nil {
			t.log.Warn("tag transaction failed", zap.String("op", op), zap.Error(err))
		}
	}()

	select {
	case t.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTransaction, ctx.Err())
	}
	defer func() { <-t.lock }()

	if err := t.Start(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTransaction, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return ErrClosed
	}
	t.cancel = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		cancel()
	}()

	tag, err := t.dev.Connect(ctx)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return err
		}
		return fmt.Errorf("%w: connect: %v", ErrTransaction, err)
	}
	defer func() {
		if rerr := tag.Release(); rerr != nil {
			t.log.Warn("tag release failed", zap.String("op", op), zap.Error(rerr))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrTransaction, op, r)
		}
	}()

	if err := fn(ctx, tag); err != nil {
		if errors.Is(err, ErrNoURI) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrTransaction, op, err)
	}
	return nil
}
