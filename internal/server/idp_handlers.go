package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/emailutil"
	"github.com/dgellow/authgate/internal/establish"
	"github.com/dgellow/authgate/internal/idp"
	jsonwriter "github.com/dgellow/authgate/internal/json"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/session"
	"github.com/dgellow/authgate/internal/storage"
)

// UserFinder maps an external identity onto an upstream user
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*session.Profile, error)
}

// IDPHandlers serves the OAuth/OIDC passthrough flow. Any provider ends in
// the same place: an upstream user lookup by verified email and a one-shot
// sign-in ticket the client SDK redeems.
type IDPHandlers struct {
	providers   map[string]idp.Provider
	stateSigner crypto.TokenSigner
	finder      UserFinder
	tickets     *establish.TicketEstablisher
	store       storage.Store
}

// oauthState is the signed state round-tripped through the provider
type oauthState struct {
	Nonce    string `json:"nonce"`
	Provider string `json:"provider"`
}

// NewIDPHandlers creates the passthrough handlers
func NewIDPHandlers(
	providers map[string]idp.Provider,
	signingKey []byte,
	finder UserFinder,
	tickets *establish.TicketEstablisher,
	store storage.Store,
) *IDPHandlers {
	return &IDPHandlers{
		providers:   providers,
		stateSigner: crypto.NewTokenSigner(signingKey, 10*time.Minute),
		finder:      finder,
		tickets:     tickets,
		store:       store,
	}
}

// StartHandler redirects the browser to the provider's authorize URL
func (h *IDPHandlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	provider, ok := h.providers[name]
	if !ok {
		jsonwriter.WriteNotFound(w, "Unknown provider: "+name)
		return
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to generate state")
		return
	}

	state, err := h.stateSigner.Sign(oauthState{Nonce: nonce, Provider: name})
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to sign state")
		return
	}

	http.Redirect(w, r, provider.AuthURL(state), http.StatusFound)
}

// CallbackHandler finishes the provider flow: verify state, exchange the
// code, fetch the identity, map it to an upstream user, and hand back a
// one-shot sign-in ticket
func (h *IDPHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	provider, ok := h.providers[name]
	if !ok {
		jsonwriter.WriteNotFound(w, "Unknown provider: "+name)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		jsonwriter.WriteUnauthorized(w, "Provider returned an error: "+errParam)
		return
	}

	var state oauthState
	if err := h.stateSigner.Verify(r.URL.Query().Get("state"), &state); err != nil {
		jsonwriter.WriteUnauthorized(w, "Invalid or expired state")
		return
	}
	if state.Provider != name {
		jsonwriter.WriteUnauthorized(w, "State was issued for a different provider")
		return
	}

	// Single-use: a replayed callback with a valid signature still fails
	if err := h.store.ConsumeHandle(r.Context(), state.Nonce, time.Now().Add(10*time.Minute)); err != nil {
		jsonwriter.WriteUnauthorized(w, "State has already been used")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		jsonwriter.WriteBadRequest(w, "Missing authorization code")
		return
	}

	token, err := provider.Exchange(r.Context(), code)
	if err != nil {
		log.LogWarnWithFields("idp", "Code exchange failed", map[string]any{
			"provider": name,
			"error":    err.Error(),
		})
		jsonwriter.WriteUnauthorized(w, "Code exchange failed")
		return
	}

	identity, err := provider.Identity(r.Context(), token)
	if err != nil {
		log.LogWarnWithFields("idp", "Identity fetch failed", map[string]any{
			"provider": name,
			"error":    err.Error(),
		})
		jsonwriter.WriteUnauthorized(w, "Could not resolve identity")
		return
	}
	if identity.Email == "" || !identity.EmailVerified {
		jsonwriter.WriteUnauthorized(w, "Provider did not supply a verified email")
		return
	}

	user, err := h.finder.FindUserByEmail(r.Context(), emailutil.Normalize(identity.Email))
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	ticket, err := h.tickets.Issue(r.Context(), establish.Grant{UserID: user.ID}, 0)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	_ = jsonwriter.Write(w, map[string]any{
		"provider": name,
		"userId":   user.ID,
		"ticket":   ticket,
	})
}
