package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	bizerrors "github.com/alexjbarnes/bizdesk/internal/errors"
	"github.com/tidwall/gjson"
)

// refreshPath is called with the bare transport so the refresh itself is
// never intercepted.
const refreshPath = "/auth/refresh"

// RefreshDeps are the effects RefreshAndRetry needs. Supplying fakes
// makes the retry protocol testable without a network.
type RefreshDeps struct {
	Tokens TokenStore
	// Refresh exchanges a refresh token for a new access token.
	Refresh func(ctx context.Context, refreshToken string) (string, error)
	// Retry re-dispatches the attempt through the full wrapper.
	Retry Doer
	// OnFailure runs after the tokens are cleared when refresh fails.
	OnFailure func()
}

// RefreshAndRetry decides what happens to a failed attempt.
//
// Anything other than a first 401 is returned unchanged. A first 401
// marks the attempt, and without a stored refresh token the original
// error is returned. Otherwise the token is refreshed, stored, and the
// request retried; if the refresh fails both tokens are cleared,
// OnFailure runs, and the refresh error is returned instead of the 401.
// A refresh that fails because ctx ended leaves the tokens alone.
func RefreshAndRetry(ctx context.Context, a *Attempt, err error, deps RefreshDeps) (*Response, error) {
	if !IsUnauthorized(err) || a.Attempted {
		return nil, err
	}

	a.Attempted = true

	refreshToken, ok := deps.Tokens.Get(RefreshTokenKey)
	if !ok {
		return nil, err
	}

	access, rerr := deps.Refresh(ctx, refreshToken)
	if rerr == nil {
		if serr := deps.Tokens.Set(AccessTokenKey, access); serr != nil {
			rerr = &Error{
				Message: fmt.Sprintf("storing refreshed token: %v", serr),
				Err:     bizerrors.ErrRefreshFailed,
			}
		}
	}

	if rerr != nil && ctx.Err() != nil {
		// The caller gave up; the stored session is still good.
		return nil, rerr
	}

	if rerr != nil {
		_ = deps.Tokens.Clear(AccessTokenKey)
		_ = deps.Tokens.Clear(RefreshTokenKey)

		if deps.OnFailure != nil {
			deps.OnFailure()
		}

		return nil, rerr
	}

	a.Request.Header.Set(headerAuthorization, "Bearer "+access)

	return deps.Retry(ctx, a)
}

// refresh calls the refresh endpoint, sharing the call between
// concurrent callers when coalescing is enabled. A shared call runs
// detached from any one caller's context, bounded by the transport
// timeout, so one caller giving up does not fail the others.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	if c.refreshGroup == nil {
		return c.refreshOnce(ctx, refreshToken)
	}

	ch := c.refreshGroup.DoChan(refreshToken, func() (any, error) {
		return c.refreshOnce(context.WithoutCancel(ctx), refreshToken)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("joined in-flight token refresh")
		}

		if res.Err != nil {
			return "", res.Err
		}

		return res.Val.(string), nil
	}
}

func (c *Client) refreshOnce(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.transport(ctx, &Attempt{Request: &Request{
		Method: http.MethodPost,
		Path:   refreshPath,
		Body:   map[string]string{"refresh_token": refreshToken},
		Header: make(http.Header),
	}})
	if err != nil {
		c.logger.Warn("token refresh failed", slog.String("error", err.Error()))

		var apiErr *Error
		if errors.As(err, &apiErr) {
			apiErr.Err = fmt.Errorf("%w: %w", bizerrors.ErrRefreshFailed, apiErr.Err)
			return "", apiErr
		}

		return "", err
	}

	access := gjson.GetBytes(resp.Body, "access_token")
	if access.Type != gjson.String || access.Str == "" {
		return "", &Error{
			Status:  resp.Status,
			Message: "refresh response missing access_token",
			Err:     bizerrors.ErrRefreshFailed,
		}
	}

	c.redirected.Store(false)
	c.logger.Debug("access token refreshed")

	return access.Str, nil
}
