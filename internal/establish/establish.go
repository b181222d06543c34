// Package establish implements the session handoff: one-shot tickets that
// let a client-side SDK adopt a server-validated sign-in without
// resubmitting credentials. Two redemption strategies live behind one
// capability interface: an upstream-minted sign-in token, and a locally
// signed activation handle redeemed back at this service.
package establish

import (
	"context"
	"time"

	"github.com/dgellow/authgate/internal/upstream"
)

// Strategy names
const (
	StrategyTicket = "ticket"
	StrategyDirect = "direct"
)

// Grant identifies the already-authenticated subject a ticket is bound to.
// SessionID is only required by the direct strategy.
type Grant struct {
	UserID    string
	SessionID string
}

// Ticket is a single-use, short-TTL exchange token
type Ticket struct {
	Value     string    `json:"ticket"`
	Strategy  string    `json:"strategy"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Establisher issues tickets for one redemption strategy
type Establisher interface {
	// Strategy returns the strategy name
	Strategy() string

	// Issue creates a ticket bound to the grant. ttl must be positive and
	// at most the configured maximum; zero selects the maximum.
	Issue(ctx context.Context, grant Grant, ttl time.Duration) (*Ticket, error)
}

// checkTTL normalizes and bounds the ticket TTL. Longer TTLs are rejected
// to bound replay exposure.
func checkTTL(ttl, max time.Duration) (time.Duration, error) {
	if ttl == 0 {
		return max, nil
	}
	if ttl < 0 || ttl > max {
		return 0, upstream.NewError(upstream.KindValidation,
			"ticket ttl must be positive and at most %s", max)
	}
	return ttl, nil
}
