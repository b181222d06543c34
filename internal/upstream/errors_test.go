package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindRejected, http.StatusUnauthorized},
		{KindInvalidSession, http.StatusUnauthorized},
		{KindSessionNotFound, http.StatusNotFound},
		{KindTransient, http.StatusBadGateway},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindConfiguration, http.StatusInternalServerError},
		{KindInvariant, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewError(tt.kind, "test")
			assert.Equal(t, tt.want, err.HTTPStatus())
		})
	}
}

func TestErrorString(t *testing.T) {
	local := NewError(KindValidation, "bad input")
	assert.Equal(t, "validation: bad input", local.Error())

	remote := &Error{Kind: KindRejected, Message: "nope", UpstreamStatus: 422}
	assert.Equal(t, "rejected: nope (upstream status 422)", remote.Error())
}

func TestKindOf(t *testing.T) {
	err := NewError(KindTimeout, "slow")
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindTransient))

	wrapped := fmt.Errorf("calling upstream: %w", err)
	assert.Equal(t, KindTimeout, KindOf(wrapped))

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
