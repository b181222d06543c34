// Package idp holds the alternative credential sources (OAuth and OIDC
// providers). The broker treats every provider as a passthrough: it maps
// the external identity onto an upstream user by email and never
// special-cases individual providers beyond this interface.
package idp

import (
	"context"
	"fmt"

	"github.com/dgellow/authgate/internal/config"
	"golang.org/x/oauth2"
)

// Identity is the normalized result of an external authentication
type Identity struct {
	Provider      string `json:"provider"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Provider abstracts one external credential source
type Provider interface {
	// Name returns the configured provider name
	Name() string

	// AuthURL generates the authorization redirect URL for the OAuth flow
	AuthURL(state string) string

	// Exchange trades an authorization code for tokens
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Identity fetches and normalizes the authenticated user's identity
	Identity(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// New builds a provider from configuration. redirectURL is the callback
// this service registered with the provider.
func New(ctx context.Context, name string, cfg config.ProviderConfig, redirectURL string) (Provider, error) {
	switch cfg.Type {
	case config.ProviderTypeOIDC:
		return NewOIDCProvider(ctx, name, cfg, redirectURL)
	case config.ProviderTypeGitHub:
		return NewGitHubProvider(name, cfg, redirectURL), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown type %q", name, cfg.Type)
	}
}
