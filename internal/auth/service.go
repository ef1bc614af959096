// Package auth implements the sign-in use cases: requesting a magic
// link, exchanging it for tokens, rehydrating a stored session, editing
// the profile, and signing out. Expected failures never escape as
// errors; operations report false and leave a message in the session.
package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alexjbarnes/bizdesk/internal/api"
	"github.com/alexjbarnes/bizdesk/internal/logging"
	"github.com/alexjbarnes/bizdesk/internal/models"
	"github.com/alexjbarnes/bizdesk/internal/session"
	"golang.org/x/text/unicode/norm"
)

// Fallback messages used when the server gives no detail.
const (
	msgMagicLinkFailed = "Failed to send magic link"
	msgExchangeFailed  = "Invalid or expired token"
	msgUpdateFailed    = "Failed to update profile"
	msgEmailRequired   = "Email is required"
	msgSaveFailed      = "Failed to save session"
)

//go:generate mockgen -destination=mock_api_test.go -package=auth . API

// API is the subset of the HTTP client the auth use cases call.
type API interface {
	LoginMagic(ctx context.Context, email string) (string, error)
	Token(ctx context.Context, token string) (*models.TokenResponse, error)
	Me(ctx context.Context) (*models.User, error)
	UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error)
	Logout(ctx context.Context) error
}

// TokenStore is the durable token holder. Both slots are written and
// cleared together.
type TokenStore interface {
	Get(name string) (string, bool)
	SetTokens(access, refresh string) error
	ClearTokens() error
}

// Service runs the auth use cases against one session.
type Service struct {
	api     API
	tokens  TokenStore
	session *session.Session
	logger  *slog.Logger
}

// NewService wires the auth use cases.
func NewService(client API, tokens TokenStore, sess *session.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Service{
		api:     client,
		tokens:  tokens,
		session: sess,
		logger:  logger.With(slog.String("component", "auth")),
	}
}

// Session returns the session this service mutates.
func (s *Service) Session() *session.Session {
	return s.session
}

// RequestMagicLink asks the server to email a sign-in link.
func (s *Service) RequestMagicLink(ctx context.Context, email string) bool {
	s.begin()
	defer s.session.SetLoading(false)

	email = normalizeEmail(email)
	if email == "" {
		s.session.SetError(msgEmailRequired)
		return false
	}

	msg, err := s.api.LoginMagic(ctx, email)
	if err != nil {
		s.fail(err, msgMagicLinkFailed)
		return false
	}

	s.logger.Info("magic link requested", slog.String("email", email), slog.String("message", msg))

	return true
}

// ExchangeToken trades a one-time magic token for session tokens and
// the user record. On failure the session is left as it was.
func (s *Service) ExchangeToken(ctx context.Context, token string) bool {
	s.begin()
	defer s.session.SetLoading(false)

	token = strings.TrimSpace(token)
	if token == "" {
		s.session.SetError(msgExchangeFailed)
		return false
	}

	resp, err := s.api.Token(ctx, token)
	if err != nil {
		s.fail(err, msgExchangeFailed)
		return false
	}

	if err := s.tokens.SetTokens(resp.AccessToken, resp.RefreshToken); err != nil {
		s.logger.Warn("failed to save tokens", slog.String("error", err.Error()))
		s.session.SetError(msgSaveFailed)

		return false
	}

	s.session.Authenticate(resp.AccessToken, resp.RefreshToken, resp.User)
	s.logger.Info("signed in", slog.String("user_id", resp.User.ID), slog.String("email", resp.User.Email))

	return true
}

// CheckAuth rehydrates the session from stored tokens. It makes no
// network call when either token is missing, and signs out when the
// profile cannot be fetched. Safe to call repeatedly.
func (s *Service) CheckAuth(ctx context.Context) bool {
	access, ok := s.tokens.Get(api.AccessTokenKey)
	if !ok {
		return false
	}

	refresh, ok := s.tokens.Get(api.RefreshTokenKey)
	if !ok {
		return false
	}

	s.session.SetTokens(access, refresh)

	user, err := s.api.Me(ctx)
	if err != nil {
		s.logger.Debug("stored session rejected", slog.String("error", err.Error()))
		s.Logout(ctx)

		return false
	}

	s.session.SetUser(user)

	return true
}

// UpdateProfile applies update and replaces the user with the server's
// copy. On failure the user is unchanged.
func (s *Service) UpdateProfile(ctx context.Context, update models.ProfileUpdate) bool {
	s.begin()
	defer s.session.SetLoading(false)

	user, err := s.api.UpdateProfile(ctx, update)
	if err != nil {
		s.fail(err, msgUpdateFailed)
		return false
	}

	s.session.SetUser(user)

	return true
}

// Logout tells the server the session is over, then clears local state.
// A failed remote call is logged and otherwise ignored.
func (s *Service) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Debug("remote logout failed", slog.String("error", err.Error()))
	}

	s.session.Reset()

	if err := s.tokens.ClearTokens(); err != nil {
		s.logger.Warn("failed to clear stored tokens", slog.String("error", err.Error()))
	}
}

// ClearError removes the last error message.
func (s *Service) ClearError() {
	s.session.ClearError()
}

func (s *Service) begin() {
	s.session.SetLoading(true)
	s.session.ClearError()
}

func (s *Service) fail(err error, fallback string) {
	msg := api.DetailOf(err)
	if msg == "" {
		msg = fallback
	}

	s.logger.Debug("auth operation failed", slog.String("error", err.Error()))
	s.session.SetError(msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(email)))
}
