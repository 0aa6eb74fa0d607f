package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"arrbridge/internal/apperr"
	"arrbridge/internal/models"
	"arrbridge/internal/store"
)

type createRequestBody struct {
	MediaType   string `json:"media_type"`
	TMDBID      int    `json:"tmdb_id"`
	RequestedBy string `json:"requested_by"`
}

type createRequestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type tmdbDetail struct {
	Title        string `json:"title"`
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	IMDBID       string `json:"imdb_id"`
	ExternalIDs  struct {
		IMDBID string `json:"imdb_id"`
		TVDBID int    `json:"tvdb_id"`
	} `json:"external_ids"`
}

// handleCreateRequest fetches the item's details from TMDB and stores a
// new pending request, enforcing the (media_type, tmdb_id) uniqueness
// invariant.
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil || body.TMDBID == 0 {
		writeError(w, apperr.ErrBadInput)
		return
	}
	mt := models.MediaType(body.MediaType)
	if mt != models.Movie && mt != models.TV {
		writeError(w, apperr.ErrBadInput)
		return
	}

	var raw json.RawMessage
	var err error
	if mt == models.Movie {
		raw, err = s.tmdb.GetMovie(r.Context(), body.TMDBID)
	} else {
		raw, err = s.tmdb.GetTV(r.Context(), body.TMDBID)
	}
	if err != nil {
		writeError(w, apperr.ErrUpstream)
		return
	}

	var detail tmdbDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		writeError(w, apperr.ErrUpstream)
		return
	}

	requestedBy := firstNonEmpty(body.RequestedBy, userNameFromContext(r.Context()))
	req := &models.Request{
		MediaType:   mt,
		TMDBID:      body.TMDBID,
		Title:       firstNonEmpty(detail.Title, detail.Name),
		Year:        yearOf(firstNonEmpty(detail.ReleaseDate, detail.FirstAirDate)),
		Overview:    detail.Overview,
		PosterPath:  detail.PosterPath,
		IMDBID:      firstNonEmpty(detail.IMDBID, detail.ExternalIDs.IMDBID),
		TVDBID:      detail.ExternalIDs.TVDBID,
		RequestedBy: requestedBy,
	}

	if err := s.store.CreateRequest(req); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			writeJSON(w, http.StatusOK, createRequestResponse{Success: false, Message: "already requested"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createRequestResponse{Success: true, Message: "requested"})
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	mt := models.MediaType(chi.URLParam(r, "media_type"))
	tmdbID, err := strconv.Atoi(chi.URLParam(r, "tmdb_id"))
	if err != nil || (mt != models.Movie && mt != models.TV) {
		writeError(w, apperr.ErrBadInput)
		return
	}
	if _, err := s.store.GetRequest(mt, tmdbID); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.DeleteRequest(mt, tmdbID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	mt := models.MediaType(r.URL.Query().Get("media_type"))
	reqs, err := s.store.ListRequests(mt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s *Server) handleLibraryStatus(w http.ResponseWriter, r *http.Request) {
	movieIDs, err := s.store.LibraryTMDBIDs(models.Movie)
	if err != nil {
		writeError(w, err)
		return
	}
	tvIDs, err := s.store.LibraryTMDBIDs(models.TV)
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := s.store.ListRequests("")
	if err != nil {
		writeError(w, err)
		return
	}
	pendingOut := make([]*models.Request, 0, len(pending))
	for _, req := range pending {
		if req.Pending() {
			pendingOut = append(pendingOut, req)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"library": map[string]any{
			"movie": movieIDs,
			"tv":    tvIDs,
		},
		"requests": pendingOut,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
