package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackops/internal/apiclient"
	"hackops/internal/audit"
	"hackops/internal/identify"
	"hackops/internal/nfc"
	"hackops/internal/queue"
)

const base = "https://www.scrapyard.dev"

type roster []apiclient.User

func (r roster) Users(context.Context) ([]apiclient.User, error) { return r, nil }

func (r roster) User(_ context.Context, id int) (*apiclient.UserDetail, error) {
	for _, u := range r {
		if u.ID == id {
			return &apiclient.UserDetail{User: u}, nil
		}
	}
	return nil, &apiclient.Error{Status: 404, Message: "user not found"}
}

type fakeRemote struct {
	mu          sync.Mutex
	marked      [][2]int
	invalidated []int
	err         error
	afterMark   func()
}

func (f *fakeRemote) MarkAttendance(_ context.Context, userID, eventID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, [2]int{userID, eventID})
	if f.afterMark != nil {
		f.afterMark()
	}
	return nil
}

func (f *fakeRemote) Invalidate(_ context.Context, id int) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, id)
	f.mu.Unlock()
}

type fakeAudit struct {
	mu     sync.Mutex
	recs   []audit.Record
	ctxErr []error
	err    error
}

func (f *fakeAudit) Publish(ctx context.Context, rec audit.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	f.ctxErr = append(f.ctxErr, ctx.Err())
	return f.err
}

type harness struct {
	sim     *nfc.Simulator
	remote  *fakeRemote
	audit   *fakeAudit
	steps   []string
	stepsMu sync.Mutex
	session *Session
}

func newHarness(t *testing.T, supported bool) *harness {
	t.Helper()
	h := &harness{audit: &fakeAudit{}}
	return h.start(t, supported, h.audit)
}

func (h *harness) start(t *testing.T, supported bool, sink AuditSink) *harness {
	t.Helper()
	h.sim = nfc.NewSimulator()
	h.remote = &fakeRemote{}
	h.sim.SetSupported(supported)
	tr := nfc.NewTransport(h.sim, nil)
	t.Cleanup(func() { _ = tr.Close() })

	users := roster{{ID: 42, Name: "Ada Lovelace"}, {ID: 7, Name: "Bob Adams"}}
	h.session = New(context.Background(), "s1", Options{
		Transport:  tr,
		Attendance: h.remote,
		Selector:   identify.NewSelector(identify.NewSearch(users), identify.NewTag(tr, users)),
		Directory:  h.remote,
		Audit:      sink,
		TagBaseURL: base,
		EventID:    1,
		Observe: func(step, result string) {
			h.stepsMu.Lock()
			h.steps = append(h.steps, step+":"+result)
			h.stepsMu.Unlock()
		},
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) pick(t *testing.T, id int) {
	t.Helper()
	snap, err := h.session.Select(context.Background(), identify.MethodSearch, identify.Input{UserID: id})
	require.NoError(t, err)
	require.Equal(t, id, snap.User.ID)
}

func userURL(id int) string { return fmt.Sprintf("%s/users/%d", base, id) }

func TestCheckIn_HappyPath(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	snap := h.session.Snapshot()
	assert.Equal(t, StateNoUser, snap.State)
	assert.Equal(t, Actions{}, snap.Actions)

	h.pick(t, 42)
	snap = h.session.Snapshot()
	assert.Equal(t, StateUserSelected, snap.State)
	assert.Equal(t, identify.MethodSearch, snap.Method)
	assert.Equal(t, userURL(42), snap.ExpectedURL)
	assert.Equal(t, Actions{Write: true, Verify: true}, snap.Actions)

	card := nfc.NewSimTag(nil)
	h.sim.Place(card)

	snap, err := h.session.WriteTag(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTagWritten, snap.State)
	assert.False(t, snap.Verified)

	snap, err = h.session.VerifyTag(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateVerified, snap.State)
	assert.True(t, snap.Actions.MarkAttendance)

	snap, err = h.session.MarkAttendance(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAttendanceMarked, snap.State)
	assert.True(t, snap.AttendanceMarked)
	assert.False(t, snap.Actions.MarkAttendance)

	assert.Equal(t, [][2]int{{42, 1}}, h.remote.marked)
	assert.Equal(t, []int{42}, h.remote.invalidated)
	require.Len(t, h.audit.recs, 1)
	rec := h.audit.recs[0]
	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, 42, rec.UserID)
	assert.True(t, rec.Verified)
	assert.False(t, rec.Bypassed)
	assert.Equal(t, userURL(42), rec.TagURL)
	assert.False(t, rec.MarkedAt.IsZero())

	_, err = h.session.MarkAttendance(ctx)
	assert.ErrorIs(t, err, ErrAlreadyMarked)

	assert.Equal(t, []string{"select:ok", "write:ok", "verify:ok", "attendance:ok", "attendance:already_marked"}, h.steps)
}

func TestCheckIn_VerificationMismatch(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.pick(t, 42)

	h.sim.Place(nfc.NewURITag(userURL(7)))
	snap, err := h.session.VerifyTag(ctx)
	require.ErrorIs(t, err, ErrVerificationMismatch)
	assert.Equal(t, "verification_mismatch", Kind(err))
	assert.Equal(t, StateUserSelected, snap.State)
	assert.False(t, snap.Verified)
	assert.False(t, snap.Actions.MarkAttendance)

	_, err = h.session.MarkAttendance(ctx)
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.Empty(t, h.remote.marked)
}

func TestCheckIn_UnsupportedBypassesVerification(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.pick(t, 42)

	snap := h.session.Snapshot()
	assert.False(t, snap.Supported)
	assert.Equal(t, Actions{MarkAttendance: true}, snap.Actions)

	_, err := h.session.WriteTag(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = h.session.VerifyTag(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)

	snap, err = h.session.MarkAttendance(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAttendanceMarked, snap.State)
	require.Len(t, h.audit.recs, 1)
	assert.True(t, h.audit.recs[0].Bypassed)
	assert.False(t, h.audit.recs[0].Verified)
}

func TestCheckIn_UserChangeResetsProgress(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.sim.Place(nfc.NewURITag(userURL(42)))

	h.pick(t, 42)
	_, err := h.session.VerifyTag(ctx)
	require.NoError(t, err)
	_, err = h.session.MarkAttendance(ctx)
	require.NoError(t, err)

	for _, id := range []int{7, 42, 7} {
		h.pick(t, id)
		snap := h.session.Snapshot()
		assert.False(t, snap.Verified)
		assert.False(t, snap.AttendanceMarked)
		assert.False(t, snap.Written)
		assert.Equal(t, StateUserSelected, snap.State)
	}

	snap := h.session.ClearUser()
	assert.Equal(t, StateNoUser, snap.State)
	assert.Nil(t, snap.User)
	assert.False(t, snap.Verified)
}

func TestCheckIn_Preconditions(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.session.WriteTag(ctx)
	assert.ErrorIs(t, err, ErrNoUser)
	_, err = h.session.VerifyTag(ctx)
	assert.ErrorIs(t, err, ErrNoUser)
	_, err = h.session.MarkAttendance(ctx)
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = h.session.Select(ctx, identify.MethodSearch, identify.Input{})
	assert.ErrorIs(t, err, identify.ErrNoSelection)
	assert.Equal(t, "invalid_request", Kind(err))
	_, err = h.session.Select(ctx, "face", identify.Input{})
	assert.Equal(t, "invalid_request", Kind(err))

	_, err = h.session.SetEvent(0)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestCheckIn_TagFailures(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		tag  func() *nfc.SimTag
		want error
		kind string
	}{
		{"blank tag", func() *nfc.SimTag { return nfc.NewSimTag(nil) }, ErrMalformedTag, "malformed_tag"},
		{"foreign url", func() *nfc.SimTag { return nfc.NewURITag("https://example.com/about") }, ErrMalformedTag, "malformed_tag"},
		{"read error", func() *nfc.SimTag {
			tag := nfc.NewURITag(userURL(42))
			tag.FailReads(true)
			return tag
		}, ErrTransactionFailed, "transaction_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			h.pick(t, 42)
			h.sim.Place(tt.tag())

			snap, err := h.session.VerifyTag(ctx)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, Kind(err))
			assert.False(t, snap.Verified)
			assert.Empty(t, snap.Busy)
		})
	}

	t.Run("write error", func(t *testing.T) {
		h := newHarness(t, true)
		h.pick(t, 42)
		tag := nfc.NewSimTag(nil)
		tag.FailWrites(true)
		h.sim.Place(tag)

		snap, err := h.session.WriteTag(ctx)
		require.ErrorIs(t, err, ErrTransactionFailed)
		assert.False(t, snap.Written)
		assert.True(t, snap.Actions.Write)
	})
}

func TestCheckIn_RemoteFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, false)
	h.remote.err = &apiclient.Error{Status: 500, Message: "boom"}
	h.pick(t, 42)

	snap, err := h.session.MarkAttendance(context.Background())
	require.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, "remote", Kind(err))
	var apiErr *apiclient.Error
	assert.ErrorAs(t, err, &apiErr)
	assert.False(t, snap.AttendanceMarked)
	assert.True(t, snap.Actions.MarkAttendance)
	assert.Empty(t, h.audit.recs)

	h.remote.err = nil
	_, err = h.session.MarkAttendance(context.Background())
	require.NoError(t, err)
}

func TestCheckIn_AuditFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, false)
	h.audit.err = errors.New("queue down")
	h.pick(t, 42)

	snap, err := h.session.MarkAttendance(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.AttendanceMarked)
}

func TestCheckIn_FullAuditQueueDoesNotBlock(t *testing.T) {
	// Nothing drains this queue.
	pub := audit.NewPublisher(queue.NewInMemory(1), nil)
	first := (&harness{}).start(t, false, pub)
	second := (&harness{}).start(t, false, pub)
	first.pick(t, 42)
	second.pick(t, 7)

	_, err := first.session.MarkAttendance(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	snap, err := second.session.MarkAttendance(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, snap.AttendanceMarked)
	assert.Empty(t, snap.Busy)
}

func TestCheckIn_AuditSurvivesCanceledRequest(t *testing.T) {
	h := newHarness(t, false)
	h.pick(t, 42)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The client hangs up right after the remote mark succeeded.
	h.remote.afterMark = cancel

	snap, err := h.session.MarkAttendance(ctx)
	require.NoError(t, err)
	assert.True(t, snap.AttendanceMarked)
	require.Len(t, h.audit.recs, 1)
	assert.NoError(t, h.audit.ctxErr[0])
}

func waitBusy(t *testing.T, s *Session, step string) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Snapshot().Busy == step }, 2*time.Second, 5*time.Millisecond)
}

func TestCheckIn_InFlightResultDroppedAfterUserChange(t *testing.T) {
	h := newHarness(t, true)
	h.pick(t, 42)

	done := make(chan error, 1)
	go func() {
		_, err := h.session.VerifyTag(context.Background())
		done <- err
	}()
	waitBusy(t, h.session, "verify")

	snap := h.session.Snapshot()
	assert.Equal(t, Actions{}, snap.Actions)
	_, err := h.session.WriteTag(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = h.session.Select(context.Background(), identify.MethodSearch, identify.Input{UserID: 7})
	assert.Equal(t, "busy", Kind(err))

	h.session.ClearUser()
	h.sim.Present(nfc.NewURITag(userURL(42)))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrUserChanged)
	case <-time.After(2 * time.Second):
		t.Fatal("verify did not finish")
	}
	snap = h.session.Snapshot()
	assert.Equal(t, StateNoUser, snap.State)
	assert.False(t, snap.Verified)
}

func TestRegistry_DeleteCancelsInFlightStep(t *testing.T) {
	var h *harness
	reg := NewRegistry(func(ctx context.Context, id string) *Session {
		h = newHarness(t, true)
		return h.session
	})
	s := reg.Create(context.Background(), "op-1")
	got, err := reg.Get(s.ID(), "op-1")
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, reg.Len())

	h.pick(t, 42)
	done := make(chan error, 1)
	go func() {
		_, err := s.WriteTag(context.Background())
		done <- err
	}()
	waitBusy(t, s, "write")

	assert.True(t, reg.Delete(s.ID()))
	assert.False(t, reg.Delete(s.ID()))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransactionFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("write was not cancelled")
	}

	_, err = s.VerifyTag(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = reg.Get(s.ID(), "op-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_Owner(t *testing.T) {
	reg := NewRegistry(func(ctx context.Context, id string) *Session {
		return (&harness{}).start(t, true, nil).session
	})
	s := reg.Create(context.Background(), "alice")
	assert.Equal(t, "alice", s.Snapshot().Owner)

	_, err := reg.Get(s.ID(), "bob")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, "forbidden", Kind(err))
	_, err = reg.Get("missing", "alice")
	assert.Equal(t, "not_found", Kind(err))
}

func TestRegistry_ReapsIdleSessions(t *testing.T) {
	var hs []*harness
	reg := NewRegistry(func(ctx context.Context, id string) *Session {
		h := (&harness{}).start(t, true, nil)
		hs = append(hs, h)
		return h.session
	})
	idle := reg.Create(context.Background(), "op-1")
	working := reg.Create(context.Background(), "op-1")
	hs[1].pick(t, 42)
	done := make(chan error, 1)
	go func() {
		_, err := working.WriteTag(context.Background())
		done <- err
	}()
	waitBusy(t, working, "write")

	assert.Zero(t, reg.Reap(time.Hour), "recently used sessions stay")

	reg.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, reg.Reap(time.Hour))
	assert.Equal(t, 1, reg.Len())
	_, err := reg.Get(idle.ID(), "op-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = idle.WriteTag(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	reg.CloseAll()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write was not cancelled")
	}
}

func TestSession_SetEventResetsAttendance(t *testing.T) {
	h := newHarness(t, false)
	h.pick(t, 42)
	_, err := h.session.MarkAttendance(context.Background())
	require.NoError(t, err)

	snap, err := h.session.SetEvent(1)
	require.NoError(t, err)
	assert.True(t, snap.AttendanceMarked)

	snap, err = h.session.SetEvent(3)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.EventID)
	assert.False(t, snap.AttendanceMarked)

	_, err = h.session.MarkAttendance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{42, 1}, {42, 3}}, h.remote.marked)
}

func TestSelectByTag(t *testing.T) {
	h := newHarness(t, true)
	h.sim.Present(nfc.NewURITag(userURL(7)))

	snap, err := h.session.Select(context.Background(), identify.MethodTag, identify.Input{})
	require.NoError(t, err)
	assert.Equal(t, 7, snap.User.ID)
	assert.Equal(t, identify.MethodTag, snap.Method)

	h.sim.Present(nfc.NewSimTag(nil))
	snap, err = h.session.Select(context.Background(), identify.MethodTag, identify.Input{})
	assert.ErrorIs(t, err, ErrMalformedTag)
	assert.Equal(t, 7, snap.User.ID)
}

func TestSelectByTag_UsesCachedSupport(t *testing.T) {
	h := newHarness(t, false)
	h.sim.SetSupported(true)
	h.sim.Present(nfc.NewURITag(userURL(7)))

	snap, err := h.session.Select(context.Background(), identify.MethodTag, identify.Input{})
	assert.Equal(t, "unsupported", Kind(err))
	assert.Nil(t, snap.User)
	assert.Zero(t, h.sim.Connects())
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{nfc.ErrUnsupported, "unsupported"},
		{fmt.Errorf("%w: timeout", nfc.ErrTransaction), "transaction_failed"},
		{nfc.ErrNoURI, "malformed_tag"},
		{identify.ErrUnrecognizedTag, "malformed_tag"},
		{&apiclient.Error{Status: 401, Message: "no"}, "remote"},
		{apiclient.ErrServerURLUnset, "remote"},
		{identify.ErrNotFound, "not_found"},
		{ErrBusy, "busy"},
		{errors.New("mystery"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
}
