// Package directory is a read-through cache over the remote user and event
// endpoints. Entries are dropped after writes that change a user.
package directory

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hackops/internal/apiclient"
	"hackops/internal/logging"
)

// Remote is the subset of the API client the directory reads from.
type Remote interface {
	ListUsers(ctx context.Context) ([]apiclient.User, error)
	GetUser(ctx context.Context, id int) (*apiclient.UserDetail, error)
	ListEvents(ctx context.Context) ([]apiclient.Event, error)
}

const (
	keyUsers  = "users"
	keyEvents = "events"
)

func keyUser(id int) string { return "users/" + strconv.Itoa(id) }

// Directory serves users and events.
type Directory struct {
	remote Remote
	cache  Cache
	ttl    time.Duration
	log    *zap.Logger
}

// New returns a directory. A nil cache disables caching.
func New(remote Remote, cache Cache, ttl time.Duration, log *zap.Logger) *Directory {
	return &Directory{remote: remote, cache: cache, ttl: ttl, log: logging.OrNop(log).Named("directory")}
}

// Users lists every user.
func (d *Directory) Users(ctx context.Context) ([]apiclient.User, error) {
	var users []apiclient.User
	if d.lookup(ctx, keyUsers, &users) {
		return users, nil
	}
	users, err := d.remote.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	d.store(ctx, keyUsers, users)
	return users, nil
}

// User returns the detailed record for id.
func (d *Directory) User(ctx context.Context, id int) (*apiclient.UserDetail, error) {
	var detail apiclient.UserDetail
	if d.lookup(ctx, keyUser(id), &detail) {
		return &detail, nil
	}
	got, err := d.remote.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, keyUser(id), got)
	return got, nil
}

// Events lists the event schedule.
func (d *Directory) Events(ctx context.Context) ([]apiclient.Event, error) {
	var events []apiclient.Event
	if d.lookup(ctx, keyEvents, &events) {
		return events, nil
	}
	events, err := d.remote.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	d.store(ctx, keyEvents, events)
	return events, nil
}

// Invalidate drops cached data that a change to user id affects.
func (d *Directory) Invalidate(ctx context.Context, id int) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Delete(ctx, keyUser(id), keyUsers); err != nil {
		d.log.Warn("cache invalidate failed", zap.Int("user_id", id), zap.Error(err))
	}
}

func (d *Directory) lookup(ctx context.Context, key string, dst any) bool {
	if d.cache == nil {
		return false
	}
	hit, err := d.cache.Get(ctx, key, dst)
	if err != nil {
		d.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (d *Directory) store(ctx context.Context, key string, v any) {
	if d.cache == nil || d.ttl <= 0 {
		return
	}
	if err := d.cache.Set(ctx, key, v, d.ttl); err != nil {
		d.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
