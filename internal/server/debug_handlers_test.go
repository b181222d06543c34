package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debugHandlers(devMode bool) *AuthHandlers {
	return NewAuthHandlers(nil, nil, nil, nil, nil, devMode)
}

func getDebugToken(h *AuthHandlers, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/debug-token?token="+token, nil)
	w := httptest.NewRecorder()
	h.DebugTokenHandler(w, req)
	return w
}

func TestDebugTokenHandler_HiddenOutsideDevMode(t *testing.T) {
	w := getDebugToken(debugHandlers(false), "whatever")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDebugTokenHandler_DecodesWithoutVerification(t *testing.T) {
	// Signed with a key this service does not know; decode must still work
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user_1",
		"sid": "sess_1",
	})
	value, err := token.SignedString([]byte("some-other-service-key"))
	require.NoError(t, err)

	w := getDebugToken(debugHandlers(true), value)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, false, body["verified"])
	claims, ok := body["claims"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user_1", claims["sub"])
	assert.Equal(t, "sess_1", claims["sid"])
}

func TestDebugTokenHandler_RejectsNonJWT(t *testing.T) {
	w := getDebugToken(debugHandlers(true), "not-a-jwt")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebugTokenHandler_RequiresToken(t *testing.T) {
	w := getDebugToken(debugHandlers(true), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
