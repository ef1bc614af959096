package api

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// memStore is an in-memory TokenStore.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newMemStore(access, refresh string) *memStore {
	s := &memStore{values: make(map[string]string)}
	if access != "" {
		s.values[AccessTokenKey] = access
	}
	if refresh != "" {
		s.values[RefreshTokenKey] = refresh
	}
	return s
}

func (s *memStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok && v != ""
}

func (s *memStore) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[name] = value
	return nil
}

func (s *memStore) Clear(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
	return nil
}

type countingNavigator struct {
	calls atomic.Int32
}

func (n *countingNavigator) ForceLogin() { n.calls.Add(1) }

// fakeAPI is an httptest server that accepts one access token at a time
// and rotates it on /auth/refresh.
type fakeAPI struct {
	mu            sync.Mutex
	validAccess   string
	validRefresh  string
	nextAccess    string
	refreshStatus int
	refreshCalls  atomic.Int32
	requestIDs    []string
	authHeaders   []string
	handler       http.HandlerFunc // optional override for non-auth paths
	srv           *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		validAccess:   "AT1",
		validRefresh:  "RT1",
		nextAccess:    "AT2",
		refreshStatus: http.StatusOK,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/auth/refresh" {
		f.refreshCalls.Add(1)
		f.mu.Lock()
		status := f.refreshStatus
		if status == http.StatusOK {
			f.validAccess = f.nextAccess
		}
		next := f.nextAccess
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"detail":"Invalid refresh token"}`))
			return
		}
		w.Write([]byte(`{"access_token":"` + next + `","token_type":"bearer"}`))
		return
	}

	f.mu.Lock()
	f.requestIDs = append(f.requestIDs, r.Header.Get(HeaderRequestID))
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	valid := f.validAccess
	handler := f.handler
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+valid {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
		return
	}

	if handler != nil {
		handler(w, r)
		return
	}

	w.Write([]byte(`{"ok":true}`))
}

func (f *fakeAPI) expire() {
	f.mu.Lock()
	f.validAccess = "rotated-away"
	f.mu.Unlock()
}

func newTestClient(f *fakeAPI, store TokenStore, nav Navigator, coalesce bool) *Client {
	return NewClient(ClientConfig{
		BaseURL:         f.srv.URL + "/api/v1",
		HTTPClient:      f.srv.Client(),
		Tokens:          store,
		Navigator:       nav,
		CoalesceRefresh: coalesce,
	}, nil)
}
