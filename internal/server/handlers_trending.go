package server

import (
	"encoding/json"
	"net/http"

	"arrbridge/internal/apperr"
)

// handleTrending answers GET /api/trending?media_type=movie|tv|all,
// grounded on original_source/backend/main.py:307-330 — spec.md §5 names
// "the search and trending endpoints" in the same breath, and this closes
// the gap between that reference and §4.7's endpoint table. Reuses
// handleSearch's annotate-and-enrich pipeline, same requested/in_library/
// number_of_seasons shape, and carries the original's hour-long
// Cache-Control since trending is cheap to serve stale.
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	mediaType := r.URL.Query().Get("media_type")
	if mediaType == "" {
		mediaType = "all"
	}

	raw, err := s.tmdb.GetTrending(r.Context(), mediaType)
	if err != nil {
		writeError(w, apperr.ErrUpstream)
		return
	}

	var parsed struct {
		Results []searchResultItem `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		writeError(w, apperr.ErrUpstream)
		return
	}

	results, err := s.annotateAndEnrich(r.Context(), parsed.Results, defaultMediaType(mediaType))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
