package errors

import "errors"

// Session errors.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRefreshFailed    = errors.New("token refresh failed")
)

// Navigation errors.
var (
	ErrUnknownRoute  = errors.New("unknown route")
	ErrRedirectLoop  = errors.New("too many navigation redirects")
	ErrInvalidRoutes = errors.New("invalid route table")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
