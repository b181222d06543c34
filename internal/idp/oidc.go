package idp

import (
	"context"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/dgellow/authgate/internal/config"
	"golang.org/x/oauth2"
)

// OIDCProvider implements Provider for any OIDC-compliant identity source,
// using discovery for endpoints and ID-token verification for the identity
type OIDCProvider struct {
	name     string
	config   oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

// oidcClaims is the subset of standard claims the broker cares about
type oidcClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// NewOIDCProvider creates an OIDC provider via issuer discovery
func NewOIDCProvider(ctx context.Context, name string, cfg config.ProviderConfig, redirectURL string) (*OIDCProvider, error) {
	provider, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("provider %s: OIDC discovery failed: %w", name, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}

	return &OIDCProvider{
		name: name,
		config: oauth2.Config{
			ClientID:     string(cfg.ClientID),
			ClientSecret: string(cfg.ClientSecret),
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     provider.Endpoint(),
		},
		verifier: provider.Verifier(&gooidc.Config{ClientID: string(cfg.ClientID)}),
	}, nil
}

// Name returns the configured provider name
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthURL generates the authorization URL
func (p *OIDCProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// Identity verifies the ID token and extracts the standard claims
func (p *OIDCProvider) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("provider %s: token response is missing id_token", p.name)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("provider %s: verifying id_token: %w", p.name, err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("provider %s: parsing claims: %w", p.name, err)
	}

	return &Identity{
		Provider:      p.name,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
