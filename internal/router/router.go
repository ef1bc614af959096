package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	bizerrors "github.com/alexjbarnes/bizdesk/internal/errors"
	"github.com/alexjbarnes/bizdesk/internal/logging"
)

// maxRedirects bounds how many guard redirects one Push follows.
const maxRedirects = 5

// Router tracks the current location and runs the guard before every
// move. It is also the navigator the API client uses to force a login.
type Router struct {
	table  *Table
	guard  *Guard
	logger *slog.Logger

	mu      sync.RWMutex
	current Location
}

// New creates a router with no current location.
func New(table *Table, guard *Guard, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Router{
		table:  table,
		guard:  guard,
		logger: logger.With(slog.String("component", "router")),
	}
}

// Table returns the route table.
func (r *Router) Table() *Table {
	return r.table
}

// Current returns the current location.
func (r *Router) Current() Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.current
}

// Push navigates to raw ("/path?query"), following guard redirects, and
// returns where navigation ended up.
func (r *Router) Push(ctx context.Context, raw string) (Location, error) {
	to, err := ParseLocation(raw)
	if err != nil {
		return Location{}, err
	}

	requested := to.FullPath()

	for i := 0; i <= maxRedirects; i++ {
		if _, ok := r.table.Match(to.Path); !ok {
			return Location{}, fmt.Errorf("%w: %s", bizerrors.ErrUnknownRoute, to.Path)
		}

		// The guard may block on the network; the lock is only taken to
		// commit the result.
		d := r.guard.Evaluate(ctx, to)
		if d.Allowed() {
			r.set(to)

			if to.FullPath() != requested {
				r.logger.Debug("navigation redirected",
					slog.String("requested", requested),
					slog.String("location", to.FullPath()),
				)
			}

			return to, nil
		}

		to = *d.Redirect
	}

	return Location{}, fmt.Errorf("%w: navigating to %s", bizerrors.ErrRedirectLoop, requested)
}

// ForceLogin jumps straight to the login route without consulting the
// guard. Called when the session cannot be recovered.
func (r *Router) ForceLogin() {
	r.logger.Info("forcing navigation to login")
	r.set(Location{Path: r.table.Login})
}

// AfterLogin navigates to the path preserved in the redirect query of
// the current location, or home when there is none.
func (r *Router) AfterLogin(ctx context.Context) (Location, error) {
	target := r.Current().Query.Get(redirectParam)
	if !isLocalPath(target) {
		target = r.table.Home
	}

	return r.Push(ctx, target)
}

func (r *Router) set(loc Location) {
	r.mu.Lock()
	r.current = loc
	r.mu.Unlock()
}

// isLocalPath rejects empty, absolute, and protocol-relative targets so a
// crafted redirect query cannot send the user elsewhere.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//")
}
