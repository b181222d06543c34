package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/authgate/internal/config"
)

func TestNew_GitHub(t *testing.T) {
	provider, err := New(context.Background(), "gh", config.ProviderConfig{
		Type:         config.ProviderTypeGitHub,
		ClientID:     "cid",
		ClientSecret: "cs",
	}, "https://auth.example.com/auth/callback/gh")

	require.NoError(t, err)
	assert.IsType(t, &GitHubProvider{}, provider)
	assert.Equal(t, "gh", provider.Name())
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), "corp", config.ProviderConfig{
		Type: "saml",
	}, "https://auth.example.com/auth/callback/corp")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestNew_OIDCDiscovery(t *testing.T) {
	var issuer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/jwks",
		})
	}))
	defer server.Close()
	issuer = server.URL

	provider, err := New(context.Background(), "corp", config.ProviderConfig{
		Type:         config.ProviderTypeOIDC,
		IssuerURL:    server.URL,
		ClientID:     "cid",
		ClientSecret: "cs",
	}, "https://auth.example.com/auth/callback/corp")

	require.NoError(t, err)
	assert.Contains(t, provider.AuthURL("state-1"), "/authorize")
	assert.Contains(t, provider.AuthURL("state-1"), "state=state-1")
	assert.Contains(t, provider.AuthURL("state-1"), "scope=openid")
}

func TestNew_OIDCDiscoveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New(context.Background(), "corp", config.ProviderConfig{
		Type:         config.ProviderTypeOIDC,
		IssuerURL:    server.URL,
		ClientID:     "cid",
		ClientSecret: "cs",
	}, "https://auth.example.com/auth/callback/corp")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery failed")
}
