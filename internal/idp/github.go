package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgellow/authgate/internal/config"
	"github.com/dgellow/authgate/internal/ioutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubProvider implements Provider for GitHub OAuth. GitHub is OAuth 2.0
// without OIDC, so the identity comes from its user API.
type GitHubProvider struct {
	name       string
	config     oauth2.Config
	apiBaseURL string // overridable for tests
}

type githubUserResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type githubEmailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHubProvider creates a GitHub OAuth provider
func NewGitHubProvider(name string, cfg config.ProviderConfig, redirectURL string) *GitHubProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email"}
	}

	return &GitHubProvider{
		name: name,
		config: oauth2.Config{
			ClientID:     string(cfg.ClientID),
			ClientSecret: string(cfg.ClientSecret),
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     github.Endpoint,
		},
		apiBaseURL: "https://api.github.com",
	}
}

// Name returns the configured provider name
func (p *GitHubProvider) Name() string {
	return p.name
}

// AuthURL generates the authorization URL
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// Identity fetches the authenticated user from GitHub's API
func (p *GitHubProvider) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	client := p.config.Client(ctx, token)

	var user githubUserResponse
	if err := p.getJSON(client, "/user", &user); err != nil {
		return nil, fmt.Errorf("provider %s: fetching user: %w", p.name, err)
	}

	// GitHub only exposes verified emails on the profile; fall back to the
	// emails API for the primary address
	email := user.Email
	emailVerified := email != ""
	if email == "" {
		var emails []githubEmailResponse
		if err := p.getJSON(client, "/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("provider %s: fetching emails: %w", p.name, err)
		}
		for _, e := range emails {
			if e.Primary {
				email = e.Email
				emailVerified = e.Verified
				break
			}
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &Identity{
		Provider:      p.name,
		Subject:       fmt.Sprintf("%d", user.ID),
		Email:         email,
		EmailVerified: emailVerified,
		Name:          name,
	}, nil
}

func (p *GitHubProvider) getJSON(client *http.Client, path string, out any) error {
	resp, err := client.Get(p.apiBaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 1024))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
