// Package router gates navigation between screens. Every navigation is
// checked against the session before it happens: protected screens
// send an unauthenticated user to the login screen, and the login
// screen sends an authenticated user home.
package router

import (
	"context"
	"net/url"
)

// redirectParam carries the originally requested path through login.
const redirectParam = "redirect"

// SessionReader reports whether the current session is authenticated.
type SessionReader interface {
	IsAuthenticated() bool
}

// Rehydrator restores a session from stored tokens.
type Rehydrator interface {
	CheckAuth(ctx context.Context) bool
}

// Decision is the outcome of evaluating one navigation.
type Decision struct {
	// Redirect is nil when navigation is allowed.
	Redirect *Location
}

// Allowed reports whether navigation may proceed to the target.
func (d Decision) Allowed() bool {
	return d.Redirect == nil
}

// Guard holds no state of its own; it reads the session on every call.
type Guard struct {
	table   *Table
	session SessionReader
	auth    Rehydrator
}

// NewGuard creates a guard over the given route table.
func NewGuard(table *Table, sess SessionReader, auth Rehydrator) *Guard {
	return &Guard{table: table, session: sess, auth: auth}
}

// Evaluate decides whether navigation to `to` is allowed. Unknown paths
// are treated as public.
func (g *Guard) Evaluate(ctx context.Context, to Location) Decision {
	route, _ := g.table.Match(to.Path)
	authed := g.session.IsAuthenticated()

	if route.RequiresAuth && !authed {
		if !g.auth.CheckAuth(ctx) {
			return Decision{Redirect: &Location{
				Path:  g.table.Login,
				Query: url.Values{redirectParam: {to.FullPath()}},
			}}
		}

		authed = g.session.IsAuthenticated()
	}

	if to.Path == g.table.Login && authed {
		return Decision{Redirect: &Location{Path: g.table.Home}}
	}

	return Decision{}
}
