// Package upstream is the thin authenticated caller to the external
// identity provider's REST API. It owns credential injection, response
// parsing, per-call timeouts, and the classification of upstream failures
// into tagged error kinds.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/authgate/internal/config"
	"github.com/dgellow/authgate/internal/ioutil"
	"github.com/dgellow/authgate/internal/session"
)

// Sign-in attempt status values. Anything other than complete means the
// upstream wants additional verification before a session exists.
const (
	StatusComplete          = "complete"
	StatusNeedsIdentifier   = "needs_identifier"
	StatusNeedsFirstFactor  = "needs_first_factor"
	StatusNeedsSecondFactor = "needs_second_factor"
	StatusNeedsFactor       = "needs_factor"
)

// SignInAttempt is the transient result of submitting credentials.
// It exists only for the duration of one login call.
type SignInAttempt struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CreatedSessionID string `json:"created_session_id"`
	AltSessionID     string `json:"session_id"`
	UserID           string `json:"user_id"`
}

// Complete reports whether the attempt reached a terminal success state
func (a *SignInAttempt) Complete() bool {
	return a.Status == StatusComplete
}

// SessionID returns the created session identifier. Some upstream versions
// report it as created_session_id and some as session_id.
func (a *SignInAttempt) SessionID() string {
	if a.CreatedSessionID != "" {
		return a.CreatedSessionID
	}
	return a.AltSessionID
}

// Client calls the upstream identity API with the configured service secret
type Client struct {
	baseURL    string
	secret     config.Secret
	httpClient *http.Client
}

// NewClient creates an upstream client from resolved configuration
func NewClient(cfg config.UpstreamConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.APIURL, "/"),
		secret:  cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Std(),
		},
	}
}

// errorEnvelope is the upstream error response shape
type errorEnvelope struct {
	Errors []struct {
		Message     string `json:"message"`
		LongMessage string `json:"long_message"`
	} `json:"errors"`
}

func (e *errorEnvelope) messages() []string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		if ue.Message != "" {
			msgs = append(msgs, ue.Message)
		}
	}
	return msgs
}

// do performs one authenticated JSON call. out may be nil when the caller
// does not need the response body.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c.secret == "" {
		return NewError(KindConfiguration, "upstream service secret is not configured")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(c.secret))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(KindInvariant, "decoding upstream response: %v", err)
		}
	}
	return nil
}

// classifyTransport maps transport-level failures: deadline overruns become
// retryable timeouts, caller cancellation propagates untagged, anything
// else is a retryable transient failure
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("upstream request canceled: %w", err)
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		return NewError(KindTimeout, "upstream request timed out")
	}
	return NewError(KindTransient, "upstream request failed: %v", err)
}

func classifyStatus(resp *http.Response) error {
	var envelope errorEnvelope
	body := ioutil.ReadLimited(resp.Body, 8192)
	_ = json.Unmarshal([]byte(body), &envelope)
	msgs := envelope.messages()

	message := "upstream request failed"
	if len(msgs) > 0 {
		message = msgs[0]
	}

	if resp.StatusCode >= 500 {
		return &Error{
			Kind:           KindTransient,
			Message:        message,
			Details:        msgs,
			UpstreamStatus: resp.StatusCode,
		}
	}

	return &Error{
		Kind:           KindRejected,
		Message:        message,
		Details:        msgs,
		UpstreamStatus: resp.StatusCode,
	}
}

// reclassify rewrites the kind of an upstream rejection based on its raw
// status, leaving message and details intact
func reclassify(err error, mapping map[int]Kind) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if kind, ok := mapping[e.UpstreamStatus]; ok && e.Kind == KindRejected {
		reclassified := *e
		reclassified.Kind = kind
		return &reclassified
	}
	return err
}

// CreateSignIn submits an identifier/password pair to the upstream sign-in
// endpoint and returns the resulting attempt, terminal or not
func (c *Client) CreateSignIn(ctx context.Context, identifier, password string) (*SignInAttempt, error) {
	var attempt SignInAttempt
	err := c.do(ctx, http.MethodPost, "/sign_ins", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &attempt)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// MintSessionToken mints a fresh bearer token for a session. Tokens are
// never cached; each call may return a new one.
func (c *Client) MintSessionToken(ctx context.Context, sessionID string) (string, error) {
	var resp struct {
		JWT   string `json:"jwt"`
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/tokens", nil, &resp)
	if err != nil {
		return "", reclassify(err, map[int]Kind{
			http.StatusNotFound: KindSessionNotFound,
		})
	}

	token := resp.JWT
	if token == "" {
		token = resp.Token
	}
	if token == "" {
		return "", NewError(KindInvariant, "upstream minted a token response without a token")
	}
	return token, nil
}

// rawUser is the upstream user record shape
type rawUser struct {
	ID             string  `json:"id"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Username       *string `json:"username"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

func (r *rawUser) normalize() *session.Profile {
	emails := make([]string, 0, len(r.EmailAddresses))
	for _, e := range r.EmailAddresses {
		emails = append(emails, e.EmailAddress)
	}
	return &session.Profile{
		ID:             r.ID,
		EmailAddresses: emails,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Username:       r.Username,
	}
}

// GetUser fetches the read-only profile projection for a user
func (c *Client) GetUser(ctx context.Context, userID string) (*session.Profile, error) {
	var raw rawUser
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

// FindUserByEmail looks up a user by email address. Used by the OAuth/OIDC
// passthrough to map an external identity onto an upstream user.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*session.Profile, error) {
	var raws []rawUser
	q := "/users?email_address=" + url.QueryEscape(email) + "&limit=1"
	if err := c.do(ctx, http.MethodGet, q, nil, &raws); err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, NewError(KindRejected, "no upstream user matches %s", email)
	}
	return raws[0].normalize(), nil
}

// rawSession is the upstream session record shape, timestamps in epoch millis
type rawSession struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	UserID         string          `json:"user_id"`
	ClientID       string          `json:"client_id"`
	LastActiveAt   int64           `json:"last_active_at"`
	ExpireAt       int64           `json:"expire_at"`
	AbandonAt      int64           `json:"abandon_at"`
	Actor          json.RawMessage `json:"actor"`
	PublicUserData *struct {
		FirstName  *string `json:"first_name"`
		LastName   *string `json:"last_name"`
		ImageURL   *string `json:"image_url"`
		Identifier *string `json:"identifier"`
	} `json:"public_user_data"`
}

func (r *rawSession) normalize() *session.Session {
	s := &session.Session{
		ID:           r.ID,
		Status:       r.Status,
		UserID:       r.UserID,
		LastActiveAt: session.FromEpochMillis(r.LastActiveAt),
		ExpireAt:     session.FromEpochMillis(r.ExpireAt),
		AbandonAt:    session.FromEpochMillis(r.AbandonAt),
	}
	if r.ClientID != "" {
		s.ClientID = &r.ClientID
	}
	if len(r.Actor) > 0 && string(r.Actor) != "null" {
		actor := r.Actor
		s.Actor = &actor
	}
	if r.PublicUserData != nil {
		s.PublicUserData = &session.PublicUserData{
			FirstName:  r.PublicUserData.FirstName,
			LastName:   r.PublicUserData.LastName,
			ImageURL:   r.PublicUserData.ImageURL,
			Identifier: r.PublicUserData.Identifier,
		}
	}
	return s
}

// VerifySession presents a session id and token pair to the upstream and
// returns the normalized session. Unauthorized and not-found answers are
// classified so callers can distinguish them.
func (c *Client) VerifySession(ctx context.Context, sessionID, token string) (*session.Session, error) {
	var raw rawSession
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/verify", map[string]string{
		"token": token,
	}, &raw)
	if err != nil {
		return nil, reclassify(err, map[int]Kind{
			http.StatusUnauthorized: KindInvalidSession,
			http.StatusNotFound:     KindSessionNotFound,
		})
	}
	return raw.normalize(), nil
}

// RevokeSession terminates a session upstream
func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/revoke", nil, nil)
	return reclassify(err, map[int]Kind{
		http.StatusNotFound: KindSessionNotFound,
	})
}

// CreateSignInToken mints an upstream single-use sign-in token for a user.
// Redeeming it is the client SDK's responsibility; redemption creates
// exactly one session and fails on reuse, enforced upstream.
func (c *Client) CreateSignInToken(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error) {
	var resp struct {
		Token string `json:"token"`
		ID    string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/sign_in_tokens", map[string]any{
		"user_id":            userID,
		"expires_in_seconds": int(ttl.Seconds()),
	}, &resp)
	if err != nil {
		return "", time.Time{}, err
	}
	if resp.Token == "" {
		return "", time.Time{}, NewError(KindInvariant, "upstream created a sign-in token without a token value")
	}
	return resp.Token, time.Now().Add(ttl), nil
}

// Probe performs one cheap authenticated call to confirm the upstream is
// reachable. Callers own any retry policy.
func (c *Client) Probe(ctx context.Context) error {
	var raws []rawUser
	return c.do(ctx, http.MethodGet, "/users?limit=1", nil, &raws)
}
