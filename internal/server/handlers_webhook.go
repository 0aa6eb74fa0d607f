package server

import (
	"encoding/json"
	"io"
	"net/http"

	"arrbridge/internal/apperr"
	"arrbridge/internal/identity"
	"arrbridge/internal/models"
)

const maxWebhookBody = 2 << 20 // 2 MiB; Plex payloads are small JSON+thumbnail multipart

// handleWebhookPlex parses the multipart "payload" field Plex sends and
// hands it to the reconciliation engine. Per §4.4(a), apart from storage
// failures (which surface as 500), the only responses that are not 200 are
// a malformed payload or a bad webhook token (handled by
// requireWebhookToken upstream) — Plex does not retry on 200, so every
// recognized-but-irrelevant event still answers 200.
func (s *Server) handleWebhookPlex(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxWebhookBody); err != nil {
		writeError(w, apperr.ErrBadInput)
		return
	}
	payload := r.FormValue("payload")
	if payload == "" {
		writeError(w, apperr.ErrBadInput)
		return
	}

	webhook, mi, err := identity.ParsePlexWebhook([]byte(payload))
	if err != nil {
		writeError(w, apperr.ErrBadInput)
		return
	}

	result, err := s.engine.HandleWebhook(r.Context(), webhook, mi)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSyncLibrary implements §4.4(b): a bulk JSON array of {tmdb_id,
// tvdb_id, title} items replacing (or merging into, without ?clear=true)
// one media type's library partition.
func (s *Server) handleSyncLibrary(w http.ResponseWriter, r *http.Request) {
	mt := models.MediaType(r.URL.Query().Get("media_type"))
	if mt != models.Movie && mt != models.TV {
		writeError(w, apperr.ErrBadInput)
		return
	}
	clear := r.URL.Query().Get("clear") == "true"

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, apperr.ErrBadInput)
		return
	}
	var items []identity.SyncItem
	if err := json.Unmarshal(body, &items); err != nil {
		writeError(w, apperr.ErrBadInput)
		return
	}

	result, err := s.engine.HandleSync(r.Context(), mt, items, clear)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
