package api

import (
	"context"
	"fmt"

	bizerrors "github.com/alexjbarnes/bizdesk/internal/errors"
	"github.com/alexjbarnes/bizdesk/internal/models"
)

type loginMagicRequest struct {
	Email string `json:"email"`
}

type loginMagicResponse struct {
	Message string `json:"message"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

// LoginMagic asks the server to email a one-time login link.
func (c *Client) LoginMagic(ctx context.Context, email string) (string, error) {
	var resp loginMagicResponse
	if err := c.post(ctx, "/auth/login_magic", loginMagicRequest{Email: email}, &resp); err != nil {
		return "", err
	}

	return resp.Message, nil
}

// Token exchanges a one-time magic token for an access/refresh pair.
func (c *Client) Token(ctx context.Context, token string) (*models.TokenResponse, error) {
	var resp models.TokenResponse
	if err := c.post(ctx, "/auth/token", tokenRequest{Token: token}, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.User == nil {
		return nil, &Error{Status: 200, Message: fmt.Sprintf("incomplete token response (user present: %t)", resp.User != nil), Err: bizerrors.ErrAPIResponse}
	}

	return &resp, nil
}

// Me returns the current user's profile.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.get(ctx, "/auth/users/me", nil, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// UpdateProfile applies a partial profile update and returns the
// updated user.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	var user models.User
	if err := c.post(ctx, "/auth/users/update", update, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// Logout invalidates the session server side.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil, nil)
}
