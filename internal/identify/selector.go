package identify

import (
	"context"
	"sync"

	"hackops/internal/apiclient"
)

// Selector mounts a set of methods and holds the single current selection.
type Selector struct {
	methods []Method

	mu       sync.Mutex
	selected *apiclient.User
	via      string
	disabled bool
	onChange func(u *apiclient.User, method string)
}

// NewSelector mounts methods in the given order.
func NewSelector(methods ...Method) *Selector {
	return &Selector{methods: methods}
}

// Methods returns the mounted methods.
func (s *Selector) Methods() []Method {
	return s.methods
}

// OnChange registers fn to run after every selection change with the new
// user and the method that produced it. Clearing passes nil and "".
func (s *Selector) OnChange(fn func(u *apiclient.User, method string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetDisabled blocks or re-allows Select.
func (s *Selector) SetDisabled(disabled bool) {
	s.mu.Lock()
	s.disabled = disabled
	s.mu.Unlock()
}

// Disabled reports whether Select is blocked.
func (s *Selector) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Select runs the named method and, on success, replaces the current
// selection with its user. On failure the selection is untouched.
func (s *Selector) Select(ctx context.Context, methodID string, in Input) (apiclient.User, error) {
	var method Method
	for _, m := range s.methods {
		if m.ID() == methodID {
			method = m
			break
		}
	}
	if method == nil {
		return apiclient.User{}, ErrUnknownMethod
	}
	if s.Disabled() {
		return apiclient.User{}, ErrDisabled
	}

	user, err := method.Identify(ctx, in)
	if err != nil {
		return apiclient.User{}, err
	}

	s.mu.Lock()
	if s.disabled {
		s.mu.Unlock()
		return apiclient.User{}, ErrDisabled
	}
	u := user
	s.selected, s.via = &u, methodID
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(&u, methodID)
	}
	return user, nil
}

// Clear drops the current selection.
func (s *Selector) Clear() {
	s.mu.Lock()
	had := s.selected != nil
	s.selected, s.via = nil, ""
	fn := s.onChange
	s.mu.Unlock()

	if had && fn != nil {
		fn(nil, "")
	}
}

// Selected returns the current user and the method that produced it.
func (s *Selector) Selected() (*apiclient.User, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil, ""
	}
	u := *s.selected
	return &u, s.via
}
