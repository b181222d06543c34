package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags every error crossing the broker surface so call sites can
// handle each case exhaustively instead of probing for ad-hoc fields
type Kind string

const (
	// KindValidation means malformed caller input, no upstream call was made
	KindValidation Kind = "validation"

	// KindConfiguration means the service credential is missing. Distinct
	// from an authentication failure and never conflated with one.
	KindConfiguration Kind = "configuration"

	// KindRejected means the upstream rejected the credentials or the
	// sign-in is incomplete
	KindRejected Kind = "rejected"

	// KindInvariant means the upstream reported success but omitted fields
	// the contract requires
	KindInvariant Kind = "invariant"

	// KindTransient means the upstream failed with a 5xx and the call may
	// be retried by the caller
	KindTransient Kind = "transient"

	// KindTimeout means the upstream call exceeded its deadline
	KindTimeout Kind = "timeout"

	// KindSessionNotFound means the referenced session does not exist
	KindSessionNotFound Kind = "session_not_found"

	// KindInvalidSession means the presented session or token was refused
	KindInvalidSession Kind = "invalid_session"
)

// Error is the tagged error type for all broker operations
type Error struct {
	Kind    Kind
	Message string

	// Details carries upstream-supplied human-readable messages, if any
	Details []string

	// UpstreamStatus is the raw HTTP status from the upstream, 0 when the
	// error originated locally
	UpstreamStatus int
}

func (e *Error) Error() string {
	if e.UpstreamStatus != 0 {
		return fmt.Sprintf("%s: %s (upstream status %d)", e.Kind, e.Message, e.UpstreamStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus maps the error kind to the status the service boundary returns
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindRejected, KindInvalidSession:
		return http.StatusUnauthorized
	case KindSessionNotFound:
		return http.StatusNotFound
	case KindTransient:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates an error with the given kind and message
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain, or "" for untagged errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
