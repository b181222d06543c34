package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	jsonwriter "github.com/dgellow/authgate/internal/json"
)

// DebugTokenHandler decodes a JWT's header and claims WITHOUT verifying the
// signature so developers can inspect what a session token carries. Session
// tokens are otherwise treated as opaque. Only registered in dev mode.
func (h *AuthHandlers) DebugTokenHandler(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		jsonwriter.WriteNotFound(w, "Not found")
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		jsonwriter.WriteBadRequest(w, "token query parameter is required")
		return
	}

	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "token is not a parseable JWT")
		return
	}

	_ = jsonwriter.Write(w, map[string]any{
		"header":   parsed.Header,
		"claims":   claims,
		"verified": false,
	})
}
