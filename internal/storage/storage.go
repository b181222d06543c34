// Package storage holds the broker's small amount of local state: used
// activation-handle tombstones (single-use enforcement), and an
// observability-only registry of brokered sessions. All authoritative
// identity state lives upstream.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrHandleUsed is returned when a single-use handle is consumed twice
var ErrHandleUsed = errors.New("activation handle already used")

// ErrSessionNotFound is returned when a tracked session doesn't exist
var ErrSessionNotFound = errors.New("session not found")

// TrackedSession is a record of a session this broker established.
// The upstream provider owns the session; this view exists for the admin
// surface only.
type TrackedSession struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Store combines the storage capabilities authgate needs
type Store interface {
	// ConsumeHandle marks a single-use handle as spent. The first call for
	// an id succeeds; every later call returns ErrHandleUsed. expiresAt
	// bounds how long the tombstone must be kept.
	ConsumeHandle(ctx context.Context, id string, expiresAt time.Time) error

	// PurgeExpiredHandles removes tombstones whose expiry has passed and
	// returns how many were removed
	PurgeExpiredHandles(ctx context.Context, now time.Time) (int, error)

	// Session tracking
	TrackSession(ctx context.Context, s TrackedSession) error
	ListSessions(ctx context.Context) ([]TrackedSession, error)
	RemoveSession(ctx context.Context, sessionID string) error

	// PurgeStaleSessions removes tracked sessions last seen before
	// olderThan and returns how many were removed. Keeps the registry
	// bounded; the upstream sessions themselves are unaffected.
	PurgeStaleSessions(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases backend resources
	Close() error
}
