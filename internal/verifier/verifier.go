// Package verifier validates a client-held session identifier and bearer
// token pair against the upstream provider and normalizes the result.
package verifier

import (
	"context"
	"strings"
	"time"

	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/session"
	"github.com/dgellow/authgate/internal/upstream"
)

// UpstreamAPI is the slice of the upstream client the verifier needs
type UpstreamAPI interface {
	VerifySession(ctx context.Context, sessionID, token string) (*session.Session, error)
	GetUser(ctx context.Context, userID string) (*session.Profile, error)
}

// VerifiedSession is the normalized verification result. User is a
// best-effort enrichment and may be null; verification is defined purely
// over the session itself.
type VerifiedSession struct {
	Session *session.Session `json:"session"`
	User    *session.Profile `json:"user"`
}

// Verifier checks presented session credentials
type Verifier struct {
	api     UpstreamAPI
	nowFunc func() time.Time
}

// New creates a verifier
func New(api UpstreamAPI) *Verifier {
	return &Verifier{api: api, nowFunc: time.Now}
}

// Verify validates the sessionID/token pair. Upstream answers classify as:
// unauthorized -> invalid session, not found -> session not found, other
// failures -> upstream error carrying the raw status and message. A session
// the upstream returns in a non-active or expired state is invalid, not an
// internal error.
func (v *Verifier) Verify(ctx context.Context, sessionID, token string) (*VerifiedSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	token = strings.TrimSpace(token)
	if sessionID == "" || token == "" {
		return nil, upstream.NewError(upstream.KindValidation, "both sessionId and token are required")
	}

	sess, err := v.api.VerifySession(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}

	if !sess.Usable(v.nowFunc()) {
		return nil, upstream.NewError(upstream.KindInvalidSession,
			"session %s is %s", sess.ID, sess.Status)
	}

	result := &VerifiedSession{Session: sess}

	// Profile enrichment is best-effort; its failure never fails verification
	if sess.UserID != "" {
		user, err := v.api.GetUser(ctx, sess.UserID)
		if err != nil {
			log.LogWarnWithFields("verifier", "Unable to load user profile", map[string]any{
				"user_id": sess.UserID,
				"error":   err.Error(),
			})
		} else {
			result.User = user
		}
	}

	return result, nil
}
