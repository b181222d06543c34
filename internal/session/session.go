// Package session defines the normalized session and user shapes the broker
// returns to callers. The upstream identity provider owns the authoritative
// records; these are read-only, time-bounded views with a stable JSON shape:
// absent optional fields are explicit nulls, never omitted.
package session

import (
	"encoding/json"
	"time"
)

// Active session status values as reported by the upstream provider
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
	StatusEnded   = "ended"
)

// PublicUserData is the subset of user data the upstream attaches to a session
type PublicUserData struct {
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	ImageURL   *string `json:"imageUrl"`
	Identifier *string `json:"identifier"`
}

// Session is the normalized view of an upstream session
type Session struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	UserID         string           `json:"userId"`
	ClientID       *string          `json:"clientId"`
	LastActiveAt   *time.Time       `json:"lastActiveAt"`
	ExpireAt       *time.Time       `json:"expireAt"`
	AbandonAt      *time.Time       `json:"abandonAt"`
	Actor          *json.RawMessage `json:"actor"`
	PublicUserData *PublicUserData  `json:"publicUserData"`
}

// Usable reports whether the session may still be presented for access:
// status must indicate an active session and the expiry must be in the future.
func (s *Session) Usable(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	if s.ExpireAt != nil && !s.ExpireAt.After(now) {
		return false
	}
	return true
}

// Profile is a read-only projection of the upstream user record.
// It is fetched best-effort; callers must tolerate its absence.
type Profile struct {
	ID             string   `json:"id"`
	EmailAddresses []string `json:"emailAddresses"`
	FirstName      *string  `json:"firstName"`
	LastName       *string  `json:"lastName"`
	Username       *string  `json:"username"`
}

// PrimaryEmail returns the first email address on the profile, or ""
func (p *Profile) PrimaryEmail() string {
	if p == nil || len(p.EmailAddresses) == 0 {
		return ""
	}
	return p.EmailAddresses[0]
}

// FromEpochMillis converts an upstream epoch-milliseconds timestamp to a
// *time.Time, mapping the zero value to nil
func FromEpochMillis(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
