// Package apperr defines the error kinds from the error-handling design
// and a single Status mapping function, generalizing the teacher's single
// models.ErrNotFound -> 404 translation (internal/store/sessions.go) to
// the full kind table.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrAuth         = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrBadInput     = errors.New("bad input")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage error")
	ErrUpstream     = errors.New("upstream error")
	ErrCrypto       = errors.New("crypto error")
)

// Status maps an error to the HTTP status it should surface as. Unknown
// errors map to 500, matching the "StorageError/UpstreamError/CryptoError
// -> 500 with safe message" rule.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBadInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// SafeMessage returns a message safe to show a client — internal errors
// never leak details past their kind.
func SafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate limited, try again later"
	case errors.Is(err, ErrBadInput):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "not found"
	default:
		return "internal error"
	}
}
