package server

import (
	"errors"
	"net/http"

	"arrbridge/internal/apperr"
	"arrbridge/internal/store"
)

// writeStoreError translates a raw internal/store error (ErrNotFound,
// ErrConditionFailed) into the apperr kind writeError expects; anything
// else is an opaque storage failure.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, apperr.ErrNotFound)
	case errors.Is(err, store.ErrConditionFailed):
		writeError(w, apperr.ErrBadInput)
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
