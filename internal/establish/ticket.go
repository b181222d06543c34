package establish

import (
	"context"
	"time"

	"github.com/dgellow/authgate/internal/upstream"
)

// SignInTokenMinter is the slice of the upstream client the ticket
// strategy needs
type SignInTokenMinter interface {
	CreateSignInToken(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error)
}

// TicketEstablisher issues upstream-minted sign-in tokens. The upstream
// enforces single use: redeeming the token creates exactly one session and
// fails on reuse. This broker never redeems its own tickets; redemption
// belongs to the client SDK.
type TicketEstablisher struct {
	minter SignInTokenMinter
	maxTTL time.Duration
}

// NewTicketEstablisher creates the upstream-backed strategy
func NewTicketEstablisher(minter SignInTokenMinter, maxTTL time.Duration) *TicketEstablisher {
	return &TicketEstablisher{minter: minter, maxTTL: maxTTL}
}

// Strategy returns the strategy name
func (e *TicketEstablisher) Strategy() string {
	return StrategyTicket
}

// Issue mints a sign-in token for the user
func (e *TicketEstablisher) Issue(ctx context.Context, grant Grant, ttl time.Duration) (*Ticket, error) {
	if grant.UserID == "" {
		return nil, upstream.NewError(upstream.KindValidation, "userId is required")
	}

	ttl, err := checkTTL(ttl, e.maxTTL)
	if err != nil {
		return nil, err
	}

	value, expiresAt, err := e.minter.CreateSignInToken(ctx, grant.UserID, ttl)
	if err != nil {
		return nil, err
	}

	return &Ticket{
		Value:     value,
		Strategy:  StrategyTicket,
		ExpiresAt: expiresAt,
	}, nil
}
