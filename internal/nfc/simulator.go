package nfc

import (
	"context"
	"errors"
	"sync"

	"hackops/internal/ndef"
)

// Simulator is an in-memory Device. Tags are either presented once (consumed
// by the next transaction) or placed on the reader until removed.
type Simulator struct {
	mu        sync.Mutex
	supported bool
	started   bool
	closed    bool
	resident  *SimTag
	queue     []*SimTag
	wake      chan struct{}
	connects  int
}

// NewSimulator returns a supported, empty simulated reader.
func NewSimulator() *Simulator {
	return &Simulator{supported: true, wake: make(chan struct{})}
}

// SetSupported toggles what Supported reports.
func (s *Simulator) SetSupported(ok bool) {
	s.mu.Lock()
	s.supported = ok
	s.mu.Unlock()
}

// Present hands tag to the next Connect only.
func (s *Simulator) Present(tag *SimTag) {
	s.mu.Lock()
	s.queue = append(s.queue, tag)
	s.signal()
	s.mu.Unlock()
}

// Place leaves tag on the reader for every Connect until Remove.
func (s *Simulator) Place(tag *SimTag) {
	s.mu.Lock()
	s.resident = tag
	s.signal()
	s.mu.Unlock()
}

// Remove takes the resident tag off the reader.
func (s *Simulator) Remove() {
	s.mu.Lock()
	s.resident = nil
	s.mu.Unlock()
}

// Resident returns the tag currently placed on the reader, if any.
func (s *Simulator) Resident() *SimTag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resident
}

// Connects counts successful Connect calls.
func (s *Simulator) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *Simulator) signal() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *Simulator) Start(context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Supported(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported, nil
}

func (s *Simulator) Connect(ctx context.Context) (Tag, error) {
	for {
		s.mu.Lock()
		switch {
		case s.closed:
			s.mu.Unlock()
			return nil, ErrClosed
		case !s.supported:
			s.mu.Unlock()
			return nil, ErrUnsupported
		case s.resident != nil:
			tag := s.resident
			s.connects++
			s.mu.Unlock()
			return tag, nil
		case len(s.queue) > 0:
			tag := s.queue[0]
			s.queue = s.queue[1:]
			s.connects++
			s.mu.Unlock()
			return tag, nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.signal()
	s.mu.Unlock()
	return nil
}

var errSimFault = errors.New("simulated tag fault")

// SimTag is a simulated Type 2 tag holding one NDEF message.
type SimTag struct {
	mu        sync.Mutex
	msg       []byte
	readFail  bool
	writeFail bool
	released  int
}

// NewSimTag returns a tag holding msg. A nil msg is a blank tag.
func NewSimTag(msg []byte) *SimTag {
	return &SimTag{msg: msg}
}

// NewURITag returns a tag holding a single URI record.
func NewURITag(uri string) *SimTag {
	msg, err := ndef.EncodeURI(uri)
	if err != nil {
		return NewSimTag(nil)
	}
	return NewSimTag(msg)
}

// FailReads makes subsequent reads fail.
func (t *SimTag) FailReads(fail bool) {
	t.mu.Lock()
	t.readFail = fail
	t.mu.Unlock()
}

// FailWrites makes subsequent writes fail.
func (t *SimTag) FailWrites(fail bool) {
	t.mu.Lock()
	t.writeFail = fail
	t.mu.Unlock()
}

// Message returns a copy of the stored message.
func (t *SimTag) Message() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.msg...)
}

// Released counts Release calls.
func (t *SimTag) Released() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

func (t *SimTag) ReadNDEF(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readFail {
		return nil, errSimFault
	}
	return append([]byte(nil), t.msg...), ctx.Err()
}

func (t *SimTag) WriteNDEF(ctx context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeFail {
		return errSimFault
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.msg = append([]byte(nil), msg...)
	return nil
}

func (t *SimTag) Release() error {
	t.mu.Lock()
	t.released++
	t.mu.Unlock()
	return nil
}
