// Package broker orchestrates the credential-to-session exchange: it takes a
// raw identifier/password pair, negotiates the multi-step sign-in with the
// upstream identity provider, and hands back a usable session artifact.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/session"
	"github.com/dgellow/authgate/internal/storage"
	"github.com/dgellow/authgate/internal/upstream"
	"golang.org/x/sync/errgroup"
)

// UpstreamAPI is the slice of the upstream client the broker needs
type UpstreamAPI interface {
	CreateSignIn(ctx context.Context, identifier, password string) (*upstream.SignInAttempt, error)
	MintSessionToken(ctx context.Context, sessionID string) (string, error)
	GetUser(ctx context.Context, userID string) (*session.Profile, error)
}

// LoginResult is the successful outcome of a credential exchange.
// SessionToken and User are best-effort enrichments: either may be null
// without affecting the success of the login itself.
type LoginResult struct {
	SessionID    string           `json:"sessionId"`
	UserID       string           `json:"userId"`
	SessionToken *string          `json:"sessionToken"`
	User         *session.Profile `json:"user"`
}

// VerificationRequired is returned when the upstream answered with a
// non-terminal status: the caller must continue the challenge identified by
// AttemptID instead of retrying the password
type VerificationRequired struct {
	Status    string
	AttemptID string
}

func (e *VerificationRequired) Error() string {
	return fmt.Sprintf("additional verification required: %s", e.Status)
}

// Broker performs credential exchanges. It holds no per-request state and
// is safe for unbounded concurrent use.
type Broker struct {
	api     UpstreamAPI
	store   storage.Store
	nowFunc func() time.Time
}

// New creates a broker. store is used for observability-only session
// tracking and may be nil.
func New(api UpstreamAPI, store storage.Store) *Broker {
	return &Broker{api: api, store: store, nowFunc: time.Now}
}

// Login exchanges an identifier/password pair for an upstream session.
//
// Login success is defined purely by session creation: the bearer token
// mint and the profile fetch are best-effort side calls whose failure nulls
// out the corresponding field, never the login. Repeated calls with the
// same credential are not idempotent; each call may create a new session.
func (b *Broker) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if identifier == "" || password == "" {
		return nil, upstream.NewError(upstream.KindValidation, "both identifier and password are required")
	}

	attempt, err := b.api.CreateSignIn(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	if !attempt.Complete() {
		return nil, &VerificationRequired{
			Status:    attempt.Status,
			AttemptID: attempt.ID,
		}
	}

	sessionID := attempt.SessionID()
	if sessionID == "" {
		return nil, upstream.NewError(upstream.KindInvariant,
			"upstream reported a complete sign-in without a session identifier")
	}

	result := &LoginResult{
		SessionID: sessionID,
		UserID:    attempt.UserID,
	}

	// Best-effort side calls run concurrently; each failure is logged and
	// degrades the payload, not the response status
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		token, err := b.api.MintSessionToken(gctx, sessionID)
		if err != nil {
			log.LogWarnWithFields("broker", "Failed to mint session token", map[string]any{
				"session_id": sessionID,
				"error":      err.Error(),
			})
			return nil
		}
		result.SessionToken = &token
		return nil
	})
	if attempt.UserID != "" {
		g.Go(func() error {
			user, err := b.api.GetUser(gctx, attempt.UserID)
			if err != nil {
				log.LogWarnWithFields("broker", "Unable to load user profile", map[string]any{
					"user_id": attempt.UserID,
					"error":   err.Error(),
				})
				return nil
			}
			result.User = user
			return nil
		})
	}
	_ = g.Wait()

	b.track(ctx, sessionID, attempt.UserID, "password")

	return result, nil
}

// track records the brokered session for the admin surface. Tracking is
// observability only; the upstream remains the session's owner.
func (b *Broker) track(ctx context.Context, sessionID, userID, source string) {
	if b.store == nil {
		return
	}
	now := b.nowFunc()
	err := b.store.TrackSession(ctx, storage.TrackedSession{
		SessionID:  sessionID,
		UserID:     userID,
		Source:     source,
		CreatedAt:  now,
		LastSeenAt: now,
	})
	if err != nil {
		log.LogWarnWithFields("broker", "Failed to track session", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// TrackExternal records a session established through a non-password source
// (OAuth passthrough, ticket redemption)
func (b *Broker) TrackExternal(ctx context.Context, sessionID, userID, source string) {
	b.track(ctx, sessionID, userID, source)
}
