package checkin

import (
	"time"

	"hackops/internal/apiclient"
	"hackops/internal/tagurl"
)

// Actions reports which steps may run now.
type Actions struct {
	Write          bool `json:"write"`
	Verify         bool `json:"verify"`
	MarkAttendance bool `json:"mark_attendance"`
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID               string          `json:"id"`
	Owner            string          `json:"owner,omitempty"`
	State            State           `json:"state"`
	User             *apiclient.User `json:"user"`
	Method           string          `json:"method,omitempty"`
	EventID          int             `json:"event_id"`
	Supported        bool            `json:"supported"`
	Written          bool            `json:"written"`
	Verified         bool            `json:"verified"`
	AttendanceMarked bool            `json:"attendance_marked"`
	Busy             string          `json:"busy,omitempty"`
	ExpectedURL      string          `json:"expected_url,omitempty"`
	Actions          Actions         `json:"actions"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:               s.id,
		Owner:            s.owner,
		State:            s.state(),
		Method:           s.via,
		EventID:          s.eventID,
		Supported:        s.supported,
		Written:          s.written,
		Verified:         s.verified,
		AttendanceMarked: s.marked,
		Busy:             s.busy,
		CreatedAt:        s.created,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
		snap.ExpectedURL = tagurl.Build(s.opts.TagBaseURL, u.ID)
	}

	ready := s.user != nil && s.busy == "" && !s.closed
	snap.Actions = Actions{
		Write:          ready && s.supported,
		Verify:         ready && s.supported,
		MarkAttendance: ready && !s.marked && (s.verified || !s.supported),
	}
	return snap
}

func (s *Session) state() State {
	switch {
	case s.user == nil:
		return StateNoUser
	case s.marked:
		return StateAttendanceMarked
	case s.verified:
		return StateVerified
	case s.written:
		return StateTagWritten
	}
	return StateUserSelected
}
