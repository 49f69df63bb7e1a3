// Package checkin drives one operator's check-in of one participant: select
// the user, optionally write their tag, verify the tag, mark attendance.
package checkin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hackops/internal/apiclient"
	"hackops/internal/audit"
	"hackops/internal/identify"
	"hackops/internal/logging"
	"hackops/internal/tagurl"
)

// State is the workflow position derived from the session flags.
type State string

const (
	StateNoUser           State = "no_user"
	StateUserSelected     State = "user_selected"
	StateTagWritten       State = "tag_written"
	StateVerified         State = "verified"
	StateAttendanceMarked State = "attendance_marked"
)

// Transport is the tag reader shared by all sessions.
type Transport interface {
	IsSupported(ctx context.Context) bool
	Write(ctx context.Context, url string) error
	Read(ctx context.Context) (string, error)
}

// Attendance marks a user present at an event.
type Attendance interface {
	MarkAttendance(ctx context.Context, userID, eventID int) error
}

// Invalidator drops cached user data after it changed remotely.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int)
}

// AuditSink receives a record for every marked attendance.
type AuditSink interface {
	Publish(ctx context.Context, rec audit.Record) error
}

// Options wires a session to its collaborators. Transport, Attendance and
// Selector are required.
type Options struct {
	Transport  Transport
	Attendance Attendance
	Selector   *identify.Selector
	Directory  Invalidator
	Audit      AuditSink
	TagBaseURL string
	EventID    int
	// Observe receives the outcome of every step: "ok" or a Kind.
	Observe func(step, result string)
	Log     *zap.Logger
	Now     func() time.Time
	// AuditTimeout bounds publishing one audit record. Defaults to 3s.
	AuditTimeout time.Duration
}

// Session holds the state of one check-in. Steps may be called from
// concurrent requests; at most one tag or remote step runs at a time.
type Session struct {
	id     string
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	user      *apiclient.User
	via       string
	eventID   int
	supported bool
	written   bool
	verified  bool
	marked    bool
	tagURL    string
	busy      string // step in flight
	gen       uint64 // bumped on every user change
	closed    bool
	created   time.Time
	active    time.Time // last request or step end
	owner     string    // operator who created the session
}

// New starts a session and queries tag support once; the answer holds for
// the session's lifetime.
func New(ctx context.Context, id string, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EventID <= 0 {
		opts.EventID = 1
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = 3 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		opts:    opts,
		log:     logging.OrNop(opts.Log).With(zap.String("session", id)),
		ctx:     base,
		cancel:  cancel,
		eventID: opts.EventID,
		created: opts.Now().UTC(),
	}
	s.active = s.created
	s.supported = opts.Transport.IsSupported(ctx)
	if !s.supported {
		s.log.Warn("tag support unavailable, verification will be bypassed")
	}
	opts.Selector.OnChange(s.setUser)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Select identifies a user through the named method and makes them the
// session's user.
func (s *Session) Select(ctx context.Context, method string, in identify.Input) (Snapshot, error) {
	return s.step("select", func() error {
		if s.isClosed() {
			return ErrClosed
		}
		ctx, stop := s.scope(ctx)
		defer stop()
		s.mu.Lock()
		supported := s.supported
		s.mu.Unlock()
		in.Supported = &supported
		if _, err := s.opts.Selector.Select(ctx, method, in); err != nil {
			return selectError(err)
		}
		return nil
	})
}

// ClearUser drops the selection. Steps still in flight finish but their
// results are discarded.
func (s *Session) ClearUser() Snapshot {
	s.opts.Selector.Clear()
	return s.Snapshot()
}

// SetEvent changes the event attendance is marked for. The attendance flag
// resets since it belonged to the previous event.
func (s *Session) SetEvent(eventID int) (Snapshot, error) {
	if eventID <= 0 {
		return s.Snapshot(), ErrInvalidEvent
	}
	s.mu.Lock()
	if s.busy != "" {
		s.mu.Unlock()
		return s.Snapshot(), ErrBusy
	}
	if s.eventID != eventID {
		s.eventID = eventID
		s.marked = false
	}
	s.mu.Unlock()
	return s.Snapshot(), nil
}

// WriteTag writes the selected user's URL to the next presented tag.
func (s *Session) WriteTag(ctx context.Context) (Snapshot, error) {
	return s.step("write", func() error { return s.write(ctx) })
}

// VerifyTag reads the next presented tag and marks the session verified when
// it carries the selected user's id.
func (s *Session) VerifyTag(ctx context.Context) (Snapshot, error) {
	return s.step("verify", func() error { return s.verify(ctx) })
}

// MarkAttendance records the selected user at the session's event. It needs
// a verified tag unless the device has no tag support.
func (s *Session) MarkAttendance(ctx context.Context) (Snapshot, error) {
	return s.step("attendance", func() error { return s.mark(ctx) })
}

func (s *Session) step(name string, fn func() error) (Snapshot, error) {
	err := fn()
	if s.opts.Observe != nil {
		result := "ok"
		if err != nil {
			result = Kind(err)
		}
		s.opts.Observe(name, result)
	}
	return s.Snapshot(), err
}

func (s *Session) write(ctx context.Context) error {
	userID, gen, err := s.begin("write")
	if err != nil {
		return err
	}
	defer s.end()
	ctx, stop := s.scope(ctx)
	defer stop()

	url := tagurl.Build(s.opts.TagBaseURL, userID)
	if err := s.opts.Transport.Write(ctx, url); err != nil {
		return tagError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrUserChanged
	}
	s.written = true
	s.log.Info("tag written", zap.Int("user_id", userID), zap.String("url", url))
	return nil
}

func (s *Session) verify(ctx context.Context) error {
	userID, gen, err := s.begin("verify")
	if err != nil {
		return err
	}
	defer s.end()
	ctx, stop := s.scope(ctx)
	defer stop()

	url, err := s.opts.Transport.Read(ctx)
	if err != nil {
		return tagError(err)
	}
	tagID, ok := tagurl.ExtractID(url)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformedTag, url)
	}
	if tagID != userID {
		s.log.Info("tag verification mismatch", zap.Int("user_id", userID), zap.Int("tag_user_id", tagID))
		return fmt.Errorf("%w: tag holds user %d, selected user is %d", ErrVerificationMismatch, tagID, userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrUserChanged
	}
	s.verified = true
	s.tagURL = url
	s.log.Info("tag verified", zap.Int("user_id", userID))
	return nil
}

func (s *Session) mark(ctx context.Context) error {
	s.mu.Lock()
	var err error
	switch {
	case s.closed:
		err = ErrClosed
	case s.user == nil:
		err = ErrNoUser
	case s.marked:
		err = ErrAlreadyMarked
	case !s.verified && s.supported:
		err = ErrNotVerified
	case s.busy != "":
		err = ErrBusy
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.busy = "attendance"
	gen := s.gen
	rec := audit.Record{
		SessionID: s.id,
		UserID:    s.user.ID,
		EventID:   s.eventID,
		Verified:  s.verified,
		Bypassed:  !s.verified && !s.supported,
		TagURL:    s.tagURL,
	}
	s.mu.Unlock()
	s.opts.Selector.SetDisabled(true)
	defer s.end()
	ctx, stop := s.scope(ctx)
	defer stop()

	if err := s.opts.Attendance.MarkAttendance(ctx, rec.UserID, rec.EventID); err != nil {
		return remoteError(err)
	}
	rec.MarkedAt = s.opts.Now().UTC()
	s.log.Info("attendance marked",
		zap.Int("user_id", rec.UserID), zap.Int("event_id", rec.EventID), zap.Bool("bypassed", rec.Bypassed))

	// The remote side changed regardless of what happened locally meanwhile.
	if s.opts.Directory != nil {
		s.opts.Directory.Invalidate(ctx, rec.UserID)
	}
	if s.opts.Audit != nil {
		// The mark already happened remotely; a gone client must not lose its record.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.AuditTimeout)
		err := s.opts.Audit.Publish(pubCtx, rec)
		cancel()
		if err != nil {
			s.log.Error("audit publish failed", zap.Int("user_id", rec.UserID), zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrUserChanged
	}
	s.marked = true
	return nil
}

// Close cancels any step in flight and rejects further steps.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.opts.Selector.OnChange(nil)
}

// begin checks the preconditions shared by tag steps and claims the session.
func (s *Session) begin(step string) (userID int, gen uint64, err error) {
	s.mu.Lock()
	switch {
	case s.closed:
		err = ErrClosed
	case s.user == nil:
		err = ErrNoUser
	case !s.supported:
		err = ErrUnsupported
	case s.busy != "":
		err = ErrBusy
	}
	if err != nil {
		s.mu.Unlock()
		return 0, 0, err
	}
	s.busy = step
	userID, gen = s.user.ID, s.gen
	s.mu.Unlock()

	s.opts.Selector.SetDisabled(true)
	return userID, gen, nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = ""
	s.active = s.opts.Now().UTC()
	s.mu.Unlock()
	s.opts.Selector.SetDisabled(false)
}

// setUser runs on every selection change.
func (s *Session) setUser(u *apiclient.User, via string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.user = u
	s.via = via
	s.written = false
	s.verified = false
	s.marked = false
	s.tagURL = ""
	if u == nil {
		s.log.Info("user cleared")
		return
	}
	s.log.Info("user selected", zap.Int("user_id", u.ID), zap.String("method", via))
}

// scope ties ctx to the session so Close cancels it.
func (s *Session) scope(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.active = s.opts.Now().UTC()
	s.mu.Unlock()
}

// idleSince reports whether the session has been idle since before cutoff.
// A step in flight counts as activity.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy == "" && s.active.Before(cutoff)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
