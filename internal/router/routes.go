package router

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	bizerrors "github.com/alexjbarnes/bizdesk/internal/errors"
	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// Route is one navigable screen.
type Route struct {
	Path         string `yaml:"path"`
	Name         string `yaml:"name"`
	RequiresAuth bool   `yaml:"requires_auth"`
}

// Table is the set of routes plus the two well-known entry points.
type Table struct {
	Home   string  `yaml:"home"`
	Login  string  `yaml:"login"`
	Routes []Route `yaml:"routes"`

	byPath map[string]Route
}

// DefaultTable returns the built-in route table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultRoutes)
	if err != nil {
		panic(fmt.Sprintf("embedded routes.yaml: %v", err))
	}

	return t
}

// LoadTable reads a route table from path, or returns the default table
// when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}

	return ParseTable(data)
}

// ParseTable decodes and validates a YAML route table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", bizerrors.ErrInvalidRoutes, err)
	}

	t.byPath = make(map[string]Route, len(t.Routes))

	for _, r := range t.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("%w: path %q must start with /", bizerrors.ErrInvalidRoutes, r.Path)
		}

		if _, dup := t.byPath[r.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q", bizerrors.ErrInvalidRoutes, r.Path)
		}

		t.byPath[r.Path] = r
	}

	login, ok := t.byPath[t.Login]
	if !ok {
		return nil, fmt.Errorf("%w: login route %q is not defined", bizerrors.ErrInvalidRoutes, t.Login)
	}

	if login.RequiresAuth {
		return nil, fmt.Errorf("%w: login route %q cannot require auth", bizerrors.ErrInvalidRoutes, t.Login)
	}

	if _, ok := t.byPath[t.Home]; !ok {
		return nil, fmt.Errorf("%w: home route %q is not defined", bizerrors.ErrInvalidRoutes, t.Home)
	}

	return &t, nil
}

// Match returns the route registered for path.
func (t *Table) Match(path string) (Route, bool) {
	r, ok := t.byPath[path]
	return r, ok
}

// Location is a navigation target: a route path plus query.
type Location struct {
	Path  string
	Query url.Values
}

// ParseLocation splits "/path?query" into a Location.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parsing location %q: %w", raw, err)
	}

	if u.Scheme != "" || u.Host != "" {
		return Location{}, fmt.Errorf("location %q must be a path", raw)
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	return Location{Path: p, Query: u.Query()}, nil
}

// FullPath renders the location back to "/path?query".
func (l Location) FullPath() string {
	if len(l.Query) == 0 {
		return l.Path
	}

	return l.Path + "?" + l.Query.Encode()
}
