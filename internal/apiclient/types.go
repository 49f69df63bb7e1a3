package apiclient

import "time"

// User is a hackathon participant as returned by the API.
type User struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	AuthProvider   string `json:"authProvider,omitempty"`
	AuthProviderID string `json:"authProviderId,omitempty"`
	TotalPoints    int    `json:"totalPoints"`
	IsOrganizer    bool   `json:"isOrganizer"`
}

// Author identifies who awarded points.
type Author struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// PointsEntry is one line of a user's points history.
type PointsEntry struct {
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Points summarizes a user's points.
type Points struct {
	Total   int           `json:"total"`
	History []PointsEntry `json:"history"`
}

// EventRef is the event summary embedded in attendance entries.
type EventRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// AttendanceEntry records whether a user attended an event.
type AttendanceEntry struct {
	Event       EventRef   `json:"event"`
	Attended    bool       `json:"attended"`
	CheckInTime *time.Time `json:"checkInTime,omitempty"`
}

// UserDetail is the single-user view with points and attendance.
type UserDetail struct {
	User
	Points     Points            `json:"points"`
	Attendance []AttendanceEntry `json:"attendance"`
}

// Event is a scheduled hackathon event.
type Event struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	AttendancePoints int     `json:"attendancePoints"`
	Time             string  `json:"time"`
	ContactOrganizer *string `json:"contactOrganizer"`
}

// AwardRequest is the body of POST /points/award.
type AwardRequest struct {
	UserID   int            `json:"userId"`
	Amount   int            `json:"amount"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AttendanceRequest is the body of POST /attendance/mark.
type AttendanceRequest struct {
	UserID  int `json:"userId"`
	EventID int `json:"eventId"`
}
