// Package app builds the client's object graph once: token store, API
// client, session, auth service and router. Everything that needs one of
// them receives it from here instead of reaching for a global.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/bizdesk/internal/api"
	"github.com/alexjbarnes/bizdesk/internal/auth"
	"github.com/alexjbarnes/bizdesk/internal/config"
	"github.com/alexjbarnes/bizdesk/internal/router"
	"github.com/alexjbarnes/bizdesk/internal/session"
	"github.com/alexjbarnes/bizdesk/internal/state"
)

// App is one running client instance.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Tokens  *state.State
	Client  *api.Client
	Session *session.Session
	Auth    *auth.Service
	Router  *router.Router
}

// New opens the token store and wires the components together.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	key, err := cfg.StateKeyBytes()
	if err != nil {
		return nil, err
	}

	tokens, err := state.LoadAt(cfg.StatePath, cfg.Origin(), state.WithKey(key))
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	table, err := router.LoadTable(cfg.RoutesFile)
	if err != nil {
		tokens.Close()
		return nil, fmt.Errorf("loading routes: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Tokens:  tokens,
		Session: session.New(),
	}

	// The router is built after the client, so the client reaches it
	// through a closure. An unrecoverable session is emptied before the
	// login redirect so the guard does not treat it as signed in.
	a.Client = api.NewClient(api.ClientConfig{
		BaseURL: cfg.APIBase(),
		Timeout: cfg.Timeout,
		Tokens:  tokens,
		Navigator: api.NavigatorFunc(func() {
			a.Session.Reset()
			a.Router.ForceLogin()
		}),
		CoalesceRefresh: cfg.CoalesceRefresh,
	}, logger)

	a.Auth = auth.NewService(a.Client, tokens, a.Session, logger)
	a.Router = router.New(table, router.NewGuard(table, a.Session, a.Auth), logger)

	return a, nil
}

// Close releases the token store.
func (a *App) Close() error {
	return a.Tokens.Close()
}

// CompleteLogin exchanges a magic token and, on success, navigates to
// the path the user originally asked for.
func (a *App) CompleteLogin(ctx context.Context, token string) (router.Location, bool) {
	if !a.Auth.ExchangeToken(ctx, token) {
		return a.Router.Current(), false
	}

	loc, err := a.Router.AfterLogin(ctx)
	if err != nil {
		a.Logger.Warn("post-login navigation failed", slog.String("error", err.Error()))
		return a.Router.Current(), true
	}

	return loc, true
}
