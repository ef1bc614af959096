package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// unknownErrorMessage is the last fallback when neither a response body
// nor a transport message is available.
const unknownErrorMessage = "Unknown error"

// Error is the single error shape returned for every failed request,
// whether it failed at the transport, with a non-2xx status, or during a
// token refresh. Its text is the response body when there is one, else
// the transport message, else "Unknown error".
type Error struct {
	// Status is the HTTP status, or 0 when no response arrived.
	Status int
	// Data is the raw response body, if any.
	Data json.RawMessage
	// Message describes a transport-level failure.
	Message string
	// Err is the classifying cause, for errors.Is.
	Err error
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		if d := e.Detail(); d != "" {
			return d
		}

		return sanitizeResponseBody(e.Data)
	}

	if e.Message != "" {
		return e.Message
	}

	return unknownErrorMessage
}

func (e *Error) Unwrap() error { return e.Err }

// Detail returns the server's "detail" message. Validation failures
// carry a list of {msg} objects; their messages are joined.
func (e *Error) Detail() string {
	if len(e.Data) == 0 || !gjson.ValidBytes(e.Data) {
		return ""
	}

	detail := gjson.GetBytes(e.Data, "detail")

	switch {
	case detail.Type == gjson.String:
		return detail.Str
	case detail.IsArray():
		var msgs []string
		for _, item := range detail.Array() {
			if m := item.Get("msg"); m.Exists() {
				msgs = append(msgs, m.String())
			}
		}

		return strings.Join(msgs, "; ")
	}

	return ""
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}

	return 0
}

// DetailOf returns the server detail message carried by err, or "".
func DetailOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail()
	}

	return ""
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
