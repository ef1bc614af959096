package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	bizerrors "github.com/alexjbarnes/bizdesk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures the effects RefreshAndRetry performs.
type recorder struct {
	refreshCalls int
	retries      int
	failures     int
	refreshErr   error
	newToken     string
	retryResp    *Response
	retryErr     error
}

func (r *recorder) deps(store TokenStore) RefreshDeps {
	return RefreshDeps{
		Tokens: store,
		Refresh: func(_ context.Context, _ string) (string, error) {
			r.refreshCalls++
			return r.newToken, r.refreshErr
		},
		Retry: func(_ context.Context, a *Attempt) (*Response, error) {
			r.retries++
			return r.retryResp, r.retryErr
		},
		OnFailure: func() { r.failures++ },
	}
}

func unauthorized() error {
	return &Error{Status: http.StatusUnauthorized, Data: []byte(`{"detail":"expired"}`), Err: bizerrors.ErrNotAuthenticated}
}

func newAttempt() *Attempt {
	return &Attempt{Request: &Request{Method: http.MethodGet, Path: "/x", Header: make(http.Header)}}
}

func TestRefreshAndRetry_Success(t *testing.T) {
	store := newMemStore("AT-old", "RT1")
	rec := &recorder{newToken: "AT2", retryResp: &Response{Status: 200}}
	a := newAttempt()

	resp, err := RefreshAndRetry(context.Background(), a, unauthorized(), rec.deps(store))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.True(t, a.Attempted)
	assert.Equal(t, "Bearer AT2", a.Request.Header.Get("Authorization"))
	assert.Equal(t, 1, rec.refreshCalls)
	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, 0, rec.failures)

	at, _ := store.Get(AccessTokenKey)
	assert.Equal(t, "AT2", at)
}

func TestRefreshAndRetry_AlreadyAttemptedPassesThrough(t *testing.T) {
	store := newMemStore("AT", "RT")
	rec := &recorder{newToken: "AT2"}
	a := newAttempt()
	a.Attempted = true
	orig := unauthorized()

	_, err := RefreshAndRetry(context.Background(), a, orig, rec.deps(store))
	assert.Same(t, orig, err)
	assert.Equal(t, 0, rec.refreshCalls)
	assert.Equal(t, 0, rec.retries)
}

func TestRefreshAndRetry_NonUnauthorizedPassesThrough(t *testing.T) {
	store := newMemStore("AT", "RT")
	rec := &recorder{}
	a := newAttempt()

	for _, status := range []int{0, http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		orig := &Error{Status: status}
		_, err := RefreshAndRetry(context.Background(), a, orig, rec.deps(store))
		assert.Same(t, orig, err)
	}
	assert.False(t, a.Attempted)
	assert.Equal(t, 0, rec.refreshCalls)
}

func TestRefreshAndRetry_PlainErrorPassesThrough(t *testing.T) {
	rec := &recorder{}
	orig := errors.New("boom")

	_, err := RefreshAndRetry(context.Background(), newAttempt(), orig, rec.deps(newMemStore("AT", "RT")))
	assert.Same(t, orig, err)
}

func TestRefreshAndRetry_NoRefreshToken(t *testing.T) {
	store := newMemStore("AT", "")
	rec := &recorder{}
	a := newAttempt()
	orig := unauthorized()

	_, err := RefreshAndRetry(context.Background(), a, orig, rec.deps(store))
	assert.Same(t, orig, err)
	assert.True(t, a.Attempted, "the attempt is marked before looking for a token")
	assert.Equal(t, 0, rec.refreshCalls)
	assert.Equal(t, 0, rec.failures)

	_, ok := store.Get(AccessTokenKey)
	assert.True(t, ok, "tokens are untouched when no refresh is attempted")
}

func TestRefreshAndRetry_RefreshFails(t *testing.T) {
	store := newMemStore("AT", "RT")
	refreshErr := &Error{Status: http.StatusUnauthorized, Data: []byte(`{"detail":"Invalid refresh token"}`), Err: bizerrors.ErrRefreshFailed}
	rec := &recorder{refreshErr: refreshErr}

	_, err := RefreshAndRetry(context.Background(), newAttempt(), unauthorized(), rec.deps(store))
	assert.Same(t, refreshErr, err)
	assert.Equal(t, 1, rec.failures)
	assert.Equal(t, 0, rec.retries)

	_, ok := store.Get(AccessTokenKey)
	assert.False(t, ok)
	_, ok = store.Get(RefreshTokenKey)
	assert.False(t, ok)
}

func TestRefreshAndRetry_StoreWriteFailureIsRefreshFailure(t *testing.T) {
	store := newMemStore("AT", "RT")
	store.setErr = errors.New("disk full")
	rec := &recorder{newToken: "AT2"}

	_, err := RefreshAndRetry(context.Background(), newAttempt(), unauthorized(), rec.deps(store))
	require.Error(t, err)
	assert.ErrorIs(t, err, bizerrors.ErrRefreshFailed)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, rec.failures)
	assert.Equal(t, 0, rec.retries)
}

func TestRefreshAndRetry_NilOnFailure(t *testing.T) {
	store := newMemStore("AT", "RT")
	rec := &recorder{refreshErr: errors.New("down")}
	deps := rec.deps(store)
	deps.OnFailure = nil

	_, err := RefreshAndRetry(context.Background(), newAttempt(), unauthorized(), deps)
	assert.EqualError(t, err, "down")
}

func TestRefreshAndRetry_RetryErrorReturned(t *testing.T) {
	store := newMemStore("AT", "RT")
	retryErr := &Error{Status: http.StatusUnauthorized}
	rec := &recorder{newToken: "AT2", retryErr: retryErr}

	_, err := RefreshAndRetry(context.Background(), newAttempt(), unauthorized(), rec.deps(store))
	assert.Same(t, retryErr, err)
	assert.Equal(t, 1, rec.refreshCalls, "exactly one refresh per request")
}

func TestRefreshAndRetry_CallerCancelledKeepsTokens(t *testing.T) {
	store := newMemStore("AT-old", "RT1")
	rec := &recorder{refreshErr: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RefreshAndRetry(ctx, newAttempt(), unauthorized(), rec.deps(store))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rec.refreshCalls)
	assert.Equal(t, 0, rec.retries)
	assert.Equal(t, 0, rec.failures)

	_, ok := store.Get(AccessTokenKey)
	assert.True(t, ok)
	_, ok = store.Get(RefreshTokenKey)
	assert.True(t, ok)
}
