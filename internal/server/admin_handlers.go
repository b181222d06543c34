package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jsonwriter "github.com/dgellow/authgate/internal/json"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/storage"
)

// SessionRevoker terminates a session upstream
type SessionRevoker interface {
	RevokeSession(ctx context.Context, sessionID string) error
}

// AdminHandlers serves the basic-auth admin surface: visibility into the
// sessions this broker established, and upstream revocation
type AdminHandlers struct {
	store   storage.Store
	revoker SessionRevoker
}

// NewAdminHandlers creates the admin handlers
func NewAdminHandlers(store storage.Store, revoker SessionRevoker) *AdminHandlers {
	return &AdminHandlers{store: store, revoker: revoker}
}

// ListSessionsHandler returns every tracked session, newest first
func (h *AdminHandlers) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		log.LogError("Failed to list sessions: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to list sessions")
		return
	}

	_ = jsonwriter.Write(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

type revokeRequest struct {
	SessionID string `json:"sessionId"`
}

// RevokeSessionHandler revokes a session upstream and drops it from
// tracking. Tracking removal is best-effort; the upstream revocation is the
// authoritative action.
func (h *AdminHandlers) RevokeSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req revokeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		jsonwriter.WriteBadRequest(w, "sessionId is required")
		return
	}

	if err := h.revoker.RevokeSession(r.Context(), req.SessionID); err != nil {
		writeBrokerError(w, err)
		return
	}

	if err := h.store.RemoveSession(r.Context(), req.SessionID); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		log.LogWarnWithFields("admin", "Failed to drop session from tracking", map[string]any{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
	}

	_ = jsonwriter.Write(w, map[string]any{
		"revoked":   true,
		"sessionId": req.SessionID,
	})
}
