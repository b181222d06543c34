// Package issuer exchanges a completed session for a bearer token usable by
// the calling client or downstream APIs.
package issuer

import (
	"context"
	"strings"

	"github.com/dgellow/authgate/internal/upstream"
)

// TokenMinter is the slice of the upstream client the issuer needs
type TokenMinter interface {
	MintSessionToken(ctx context.Context, sessionID string) (string, error)
}

// IssuedToken is an opaque bearer credential with its type tag
type IssuedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Issuer mints bearer tokens for existing sessions. Tokens are never
// cached: each call may mint a fresh one, and callers needing reuse must
// hold the returned value themselves.
type Issuer struct {
	minter TokenMinter
}

// New creates an issuer
func New(minter TokenMinter) *Issuer {
	return &Issuer{minter: minter}
}

// IssueToken mints a bearer token for the session. A non-existent or
// expired session surfaces as a session-not-found error; upstream
// clock-skew and transient failures surface as retryable errors distinct
// from authorization failures.
func (i *Issuer) IssueToken(ctx context.Context, sessionID string) (*IssuedToken, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, upstream.NewError(upstream.KindValidation, "sessionId is required")
	}

	token, err := i.minter.MintSessionToken(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &IssuedToken{
		AccessToken: token,
		TokenType:   "bearer",
	}, nil
}
