package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/authgate/internal/broker"
	"github.com/dgellow/authgate/internal/establish"
	"github.com/dgellow/authgate/internal/issuer"
	jsonwriter "github.com/dgellow/authgate/internal/json"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/storage"
	"github.com/dgellow/authgate/internal/upstream"
	"github.com/dgellow/authgate/internal/verifier"
)

// AuthHandlers provides the broker's HTTP surface with dependency injection
type AuthHandlers struct {
	broker       *broker.Broker
	verifier     *verifier.Verifier
	issuer       *issuer.Issuer
	establishers map[string]establish.Establisher
	direct       *establish.DirectEstablisher
	devMode      bool
}

// NewAuthHandlers creates the auth handlers. direct may be nil when no
// ticket signing key is configured.
func NewAuthHandlers(
	b *broker.Broker,
	v *verifier.Verifier,
	i *issuer.Issuer,
	establishers map[string]establish.Establisher,
	direct *establish.DirectEstablisher,
	devMode bool,
) *AuthHandlers {
	return &AuthHandlers{
		broker:       b,
		verifier:     v,
		issuer:       i,
		establishers: establishers,
		direct:       direct,
		devMode:      devMode,
	}
}

// writeBrokerError maps the tagged error taxonomy onto the wire
func writeBrokerError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrHandleUsed) {
		jsonwriter.WriteConflict(w, "Ticket has already been redeemed")
		return
	}

	var ue *upstream.Error
	if errors.As(err, &ue) {
		jsonwriter.WriteError(w, ue.HTTPStatus(), ue.Message, ue.Details...)
		return
	}

	log.LogError("Unclassified error on auth surface: %v", err)
	jsonwriter.WriteInternalServerError(w, "Failed to process request")
}

// decodeJSONBody decodes a request body, rejecting non-JSON payloads
func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		jsonwriter.WriteBadRequest(w, "Request body must be valid JSON")
		return false
	}
	return true
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	*broker.LoginResult
}

type verificationRequiredResponse struct {
	Error           string `json:"error"`
	Status          string `json:"status"`
	SignInAttemptID string `json:"signInAttemptId,omitempty"`
}

// LoginHandler exchanges an identifier/password pair for a session
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.broker.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		// A non-terminal sign-in status is not a failure: surface the
		// status and correlation id so the client can continue the
		// challenge instead of retrying the password
		var vr *broker.VerificationRequired
		if errors.As(err, &vr) {
			_ = jsonwriter.WriteResponse(w, http.StatusUnauthorized, verificationRequiredResponse{
				Error:           "Additional verification is required to complete sign in",
				Status:          vr.Status,
				SignInAttemptID: vr.AttemptID,
			})
			return
		}
		writeBrokerError(w, err)
		return
	}

	_ = jsonwriter.Write(w, loginResponse{
		Message:     "Successfully signed in",
		LoginResult: result,
	})
}

type verifySessionRequest struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// VerifySessionHandler validates a presented session id + token pair
func (h *AuthHandlers) VerifySessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req verifySessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.verifier.Verify(r.Context(), req.SessionID, req.Token)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	_ = jsonwriter.Write(w, result)
}

type tokenRequest struct {
	SessionID string `json:"sessionId"`
}

// TokenHandler mints a fresh bearer token for an already-authenticated
// caller: the request must present a valid session token for the session
// it wants a new token for
func (h *AuthHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if presented == "" || presented == r.Header.Get("Authorization") {
		jsonwriter.WriteUnauthorized(w, "Bearer session token required")
		return
	}

	var req tokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.verifier.Verify(r.Context(), req.SessionID, presented); err != nil {
		writeBrokerError(w, err)
		return
	}

	token, err := h.issuer.IssueToken(r.Context(), req.SessionID)
	if err != nil {
		// The caller is authenticated at this point; a mint failure is a
		// bad request on this surface, whatever its upstream cause
		var ue *upstream.Error
		if errors.As(err, &ue) {
			jsonwriter.WriteBadRequest(w, ue.Message)
		} else {
			jsonwriter.WriteBadRequest(w, "Failed to mint session token")
		}
		return
	}

	_ = jsonwriter.Write(w, token)
}

type ticketRequest struct {
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId,omitempty"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
}

// TicketHandler issues a one-shot handoff ticket for an already-resolved
// user. Registered behind admin authentication.
func (h *AuthHandlers) TicketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ticketRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = establish.StrategyTicket
	}
	est, ok := h.establishers[strategy]
	if !ok {
		jsonwriter.WriteBadRequest(w, "Unknown ticket strategy: "+strategy)
		return
	}

	ticket, err := est.Issue(r.Context(), establish.Grant{
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	_ = jsonwriter.Write(w, ticket)
}

type activateRequest struct {
	Ticket string `json:"ticket"`
}

type activateResponse struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// ActivateHandler redeems a direct-strategy activation handle exactly once
func (h *AuthHandlers) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.direct == nil {
		jsonwriter.WriteNotFound(w, "Direct activation is not configured")
		return
	}

	var req activateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Ticket) == "" {
		jsonwriter.WriteBadRequest(w, "ticket is required")
		return
	}

	grant, err := h.direct.Redeem(r.Context(), req.Ticket)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	h.broker.TrackExternal(r.Context(), grant.SessionID, grant.UserID, "activation")

	_ = jsonwriter.Write(w, activateResponse{
		SessionID: grant.SessionID,
		UserID:    grant.UserID,
	})
}
