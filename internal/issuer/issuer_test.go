package issuer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/authgate/internal/upstream"
)

type fakeMinter struct {
	token string
	err   error
	calls int
}

func (f *fakeMinter) MintSessionToken(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.token, f.err
}

func TestIssueToken(t *testing.T) {
	minter := &fakeMinter{token: "tok_fresh"}
	i := New(minter)

	issued, err := i.IssueToken(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "tok_fresh", issued.AccessToken)
	assert.Equal(t, "bearer", issued.TokenType)
}

func TestIssueToken_BlankSessionID(t *testing.T) {
	minter := &fakeMinter{}
	i := New(minter)

	_, err := i.IssueToken(context.Background(), "   ")
	assert.True(t, upstream.IsKind(err, upstream.KindValidation))
	assert.Equal(t, 0, minter.calls)
}

func TestIssueToken_MintFailure(t *testing.T) {
	minter := &fakeMinter{err: upstream.NewError(upstream.KindSessionNotFound, "no such session")}
	i := New(minter)

	_, err := i.IssueToken(context.Background(), "sess_gone")
	assert.True(t, upstream.IsKind(err, upstream.KindSessionNotFound))
}

func TestIssueToken_NeverCached(t *testing.T) {
	minter := &fakeMinter{token: "tok"}
	i := New(minter)

	for range 3 {
		_, err := i.IssueToken(context.Background(), "sess_1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, minter.calls, "every issue call mints upstream")
}
