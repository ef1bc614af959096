package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultSearchLimit matches the server's default page size for search.
const DefaultSearchLimit = 50

// Search runs a cross-domain search over tasks, transactions, documents
// and campaigns.
func (c *Client) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	return c.Get(ctx, "/search/search", q)
}

// RecentActivity lists recent items across all domains.
func (c *Client) RecentActivity(ctx context.Context, days, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(days))
	q.Set("limit", strconv.Itoa(limit))

	return c.Get(ctx, "/search/recent", q)
}

// Get fetches any API path and returns the raw JSON body. Domain stores
// (tasks, finance, documents, marketing, chat) use it and Post instead of
// typed helpers.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: normalizePath(path), Query: query})
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body), nil
}

// Post sends body as JSON to any API path and returns the raw reply.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: normalizePath(path), Body: body})
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body), nil
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}

	return p
}
