package audit

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"hackops/internal/store"
)

// Repository persists audit records in Postgres, or sqlite for a station
// running without one.
type Repository struct {
	db     *sql.DB
	driver string
}

// NewRepository creates a repo. driver is the database/sql driver name db
// was opened with.
func NewRepository(db *sql.DB, driver string) *Repository {
	return &Repository{db: db, driver: driver}
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS checkin_audit (
		id         UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id    INTEGER NOT NULL,
		event_id   INTEGER NOT NULL,
		verified   BOOLEAN NOT NULL,
		bypassed   BOOLEAN NOT NULL,
		tag_url    TEXT NOT NULL DEFAULT '',
		marked_at  TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS checkin_audit_user_idx ON checkin_audit (user_id, marked_at DESC);
`

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS checkin_audit (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id    INTEGER NOT NULL,
		event_id   INTEGER NOT NULL,
		verified   BOOLEAN NOT NULL,
		bypassed   BOOLEAN NOT NULL,
		tag_url    TEXT NOT NULL DEFAULT '',
		marked_at  TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS checkin_audit_user_idx ON checkin_audit (user_id, marked_at DESC);
`

// Migrate creates the audit table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if r.driver == store.DriverSQLite {
		schema = sqliteSchema
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Insert stores rec. Redelivered records with a known id are ignored.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	if rec.UserID <= 0 {
		return errors.New("audit record needs a user id")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkin_audit (id, session_id, user_id, event_id, verified, bypassed, tag_url, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.SessionID, rec.UserID, rec.EventID, rec.Verified, rec.Bypassed, rec.TagURL, rec.MarkedAt)
	return err
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	UserID       int
	EventID      int
	BypassedOnly bool
	Limit        int
	Offset       int
}

// List returns records newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query, args := listQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.EventID, &rec.Verified, &rec.Bypassed, &rec.TagURL, &rec.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func listQuery(f Filter) (string, []any) {
	query := `SELECT id, session_id, user_id, event_id, verified, bypassed, tag_url, marked_at FROM checkin_audit`
	var (
		args    []any
		clauses []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.UserID > 0 {
		clauses = append(clauses, "user_id = "+arg(f.UserID))
	}
	if f.EventID > 0 {
		clauses = append(clauses, "event_id = "+arg(f.EventID))
	}
	if f.BypassedOnly {
		clauses = append(clauses, "bypassed")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY marked_at DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)
	return query, args
}
