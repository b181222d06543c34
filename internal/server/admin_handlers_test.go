package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/authgate/internal/storage"
	"github.com/dgellow/authgate/internal/upstream"
)

type fakeRevoker struct {
	err   error
	calls []string
}

func (f *fakeRevoker) RevokeSession(_ context.Context, sessionID string) error {
	f.calls = append(f.calls, sessionID)
	return f.err
}

func trackTestSession(t *testing.T, store storage.Store, sessionID string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.TrackSession(context.Background(), storage.TrackedSession{
		SessionID:  sessionID,
		UserID:     "user_1",
		Source:     "password",
		CreatedAt:  now,
		LastSeenAt: now,
	}))
}

func TestListSessionsHandler(t *testing.T) {
	store := storage.NewMemoryStore()
	trackTestSession(t, store, "sess_1")
	trackTestSession(t, store, "sess_2")
	h := NewAdminHandlers(store, &fakeRevoker{})

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	w := httptest.NewRecorder()
	h.ListSessionsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["count"])
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 2)
}

func TestRevokeSessionHandler(t *testing.T) {
	store := storage.NewMemoryStore()
	trackTestSession(t, store, "sess_1")
	revoker := &fakeRevoker{}
	h := NewAdminHandlers(store, revoker)

	w := postJSON(t, h.RevokeSessionHandler, "/admin/sessions/revoke", `{"sessionId": "sess_1"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["revoked"])
	assert.Equal(t, []string{"sess_1"}, revoker.calls)

	remaining, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining, "revoked session should leave tracking")
}

func TestRevokeSessionHandler_UntrackedSession(t *testing.T) {
	// Revoking a session this broker never tracked still works: the
	// upstream revocation is the authoritative action
	h := NewAdminHandlers(storage.NewMemoryStore(), &fakeRevoker{})

	w := postJSON(t, h.RevokeSessionHandler, "/admin/sessions/revoke", `{"sessionId": "sess_external"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRevokeSessionHandler_UpstreamNotFound(t *testing.T) {
	revoker := &fakeRevoker{err: upstream.NewError(upstream.KindSessionNotFound, "no such session")}
	h := NewAdminHandlers(storage.NewMemoryStore(), revoker)

	w := postJSON(t, h.RevokeSessionHandler, "/admin/sessions/revoke", `{"sessionId": "sess_gone"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevokeSessionHandler_MissingSessionID(t *testing.T) {
	revoker := &fakeRevoker{}
	h := NewAdminHandlers(storage.NewMemoryStore(), revoker)

	w := postJSON(t, h.RevokeSessionHandler, "/admin/sessions/revoke", `{"sessionId": " "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, revoker.calls)
}
