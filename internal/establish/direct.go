package establish

import (
	"context"
	"time"

	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/storage"
	"github.com/dgellow/authgate/internal/upstream"
)

// DirectEstablisher hands out locally HMAC-signed activation handles bound
// to an existing session. The client presents the handle back to this
// service, which verifies the signature and enforces single use through the
// store before revealing the session identifier.
type DirectEstablisher struct {
	signingKey []byte
	store      storage.Store
	maxTTL     time.Duration
}

// activationClaims is the signed handle payload
type activationClaims struct {
	HandleID  string `json:"handle_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// NewDirectEstablisher creates the locally signed strategy
func NewDirectEstablisher(signingKey []byte, store storage.Store, maxTTL time.Duration) *DirectEstablisher {
	return &DirectEstablisher{signingKey: signingKey, store: store, maxTTL: maxTTL}
}

// Strategy returns the strategy name
func (e *DirectEstablisher) Strategy() string {
	return StrategyDirect
}

// Issue signs an activation handle for the grant's session
func (e *DirectEstablisher) Issue(_ context.Context, grant Grant, ttl time.Duration) (*Ticket, error) {
	if grant.UserID == "" || grant.SessionID == "" {
		return nil, upstream.NewError(upstream.KindValidation,
			"both userId and sessionId are required for direct activation")
	}

	ttl, err := checkTTL(ttl, e.maxTTL)
	if err != nil {
		return nil, err
	}

	handleID, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, upstream.NewError(upstream.KindInvariant, "generating handle id: %v", err)
	}

	signer := crypto.NewTokenSigner(e.signingKey, ttl)
	value, err := signer.Sign(activationClaims{
		HandleID:  handleID,
		SessionID: grant.SessionID,
		UserID:    grant.UserID,
	})
	if err != nil {
		return nil, upstream.NewError(upstream.KindInvariant, "signing activation handle: %v", err)
	}

	return &Ticket{
		Value:     value,
		Strategy:  StrategyDirect,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// Redeem verifies an activation handle and consumes it. Signature and
// expiry are checked before the store is touched; a second redemption of a
// valid handle returns storage.ErrHandleUsed.
func (e *DirectEstablisher) Redeem(ctx context.Context, value string) (*Grant, error) {
	signer := crypto.NewTokenSigner(e.signingKey, 0)

	var claims activationClaims
	if err := signer.Verify(value, &claims); err != nil {
		return nil, upstream.NewError(upstream.KindRejected, "invalid activation ticket: %v", err)
	}

	// Tombstone retention outlives any possible handle expiry
	if err := e.store.ConsumeHandle(ctx, claims.HandleID, time.Now().Add(e.maxTTL)); err != nil {
		return nil, err
	}

	return &Grant{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
	}, nil
}
