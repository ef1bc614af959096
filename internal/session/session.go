// Package session holds the in-memory view of the signed-in user.
// A Session is created empty, populated by a token exchange or by
// rehydrating stored tokens, and reset on logout or when a refresh
// fails for good.
package session

import (
	"sync"

	"github.com/alexjbarnes/bizdesk/internal/models"
)

// Snapshot is an immutable copy of the session at one point in time.
type Snapshot struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	Loading      bool
	LastError    string
}

// IsAuthenticated is true only when both an access token and a user
// record are present. A token alone is not enough: the profile may not
// have arrived yet.
func (s Snapshot) IsAuthenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// Session is safe for concurrent use. Every setter commits its fields
// under one lock and then notifies subscribers with the new snapshot.
type Session struct {
	mu           sync.RWMutex
	user         *models.User
	accessToken  string
	refreshToken string
	loading      bool
	lastError    string

	listenersMu sync.Mutex
	listeners   map[int]func(Snapshot)
	nextID      int
}

// New returns an empty session.
func New() *Session {
	return &Session{listeners: make(map[int]func(Snapshot))}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		User:         copyUser(s.user),
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		Loading:      s.loading,
		LastError:    s.lastError,
	}
}

// IsAuthenticated reports whether the session has both a token and a user.
func (s *Session) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

// User returns a copy of the current user, or nil.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyUser(s.user)
}

// UserEmail returns the user's email, or "".
func (s *Session) UserEmail() string {
	if u := s.User(); u != nil {
		return u.Email
	}

	return ""
}

// UserName returns the display name, falling back to the email and then
// to "User".
func (s *Session) UserName() string {
	u := s.User()

	switch {
	case u == nil:
		return "User"
	case u.FullName != "":
		return u.FullName
	case u.Email != "":
		return u.Email
	default:
		return "User"
	}
}

// LastError returns the most recent user-facing error message.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastError
}

// Loading reports whether an auth operation is in progress.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loading
}

// Authenticate commits tokens and user in one step.
func (s *Session) Authenticate(access, refresh string, user *models.User) {
	s.commit(func() {
		s.accessToken = access
		s.refreshToken = refresh
		s.user = copyUser(user)
	})
}

// SetTokens commits both tokens without touching the user.
func (s *Session) SetTokens(access, refresh string) {
	s.commit(func() {
		s.accessToken = access
		s.refreshToken = refresh
	})
}

// SetUser replaces the user record.
func (s *Session) SetUser(user *models.User) {
	s.commit(func() {
		s.user = copyUser(user)
	})
}

// SetLoading sets the in-progress flag.
func (s *Session) SetLoading(loading bool) {
	s.commit(func() {
		s.loading = loading
	})
}

// SetError records a user-facing error message.
func (s *Session) SetError(msg string) {
	s.commit(func() {
		s.lastError = msg
	})
}

// ClearError removes the last error.
func (s *Session) ClearError() {
	s.SetError("")
}

// Reset drops the user and both tokens.
func (s *Session) Reset() {
	s.commit(func() {
		s.user = nil
		s.accessToken = ""
		s.refreshToken = ""
	})
}

// Subscribe registers fn to be called with a snapshot after every
// change. The returned function unregisters it.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Session) commit(mutate func()) {
	s.mu.Lock()
	mutate()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}

	c := *u

	return &c
}
