package server

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/sync/errgroup"

	"arrbridge/internal/apperr"
	"arrbridge/internal/models"
)

type searchRequest struct {
	Query     string `json:"query"`
	MediaType string `json:"media_type,omitempty"`
	Page      int    `json:"page,omitempty"`
}

type searchResultItem struct {
	ID              int    `json:"id"`
	MediaType       string `json:"media_type"`
	Title           string `json:"title,omitempty"`
	Name            string `json:"name,omitempty"`
	Overview        string `json:"overview,omitempty"`
	PosterPath      string `json:"poster_path,omitempty"`
	Requested       bool   `json:"requested"`
	InLibrary       bool   `json:"in_library"`
	NumberOfSeasons int    `json:"number_of_seasons,omitempty"`
}

type tvDetail struct {
	NumberOfSeasons int `json:"number_of_seasons"`
}

// searchEnrichConcurrency bounds the per-item TMDB get_tv fan-out (§5) so a
// full result page can't open one goroutine, and one outbound TMDB
// request, per row.
const searchEnrichConcurrency = 8

// handleSearch dispatches to TMDB's movie-only, tv-only, or combined
// multi-search depending on the caller's media_type — matching the
// original's search_movie/search_tv/search_multi branch
// (original_source/backend/main.py:174-180) — then annotates each result
// with whether it's already requested/in the library, plus (TV only, best
// effort, concurrent) its season count.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil || req.Query == "" {
		writeError(w, apperr.ErrBadInput)
		return
	}

	var raw json.RawMessage
	var err error
	switch req.MediaType {
	case "movie":
		raw, err = s.tmdb.SearchMovie(r.Context(), req.Query, req.Page)
	case "tv":
		raw, err = s.tmdb.SearchTV(r.Context(), req.Query, req.Page)
	default:
		raw, err = s.tmdb.Search(r.Context(), req.Query, req.Page)
	}
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

	results, err := s.annotateAndEnrich(r.Context(), parsed.Results, defaultMediaType(req.MediaType))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// annotateAndEnrich filters person results, defaults a blank TMDB
// media_type to defaultMT (movie-only/tv-only searches carry no
// per-item media_type field), tags each row with requested/in_library,
// and fans out the TV season-count enrichment. Shared by handleSearch and
// handleTrending.
func (s *Server) annotateAndEnrich(ctx context.Context, items []searchResultItem, defaultMT string) ([]searchResultItem, error) {
	movieTMDBIDs, err := s.store.LibraryTMDBIDs(models.Movie)
	if err != nil {
		return nil, err
	}
	tvTMDBIDs, err := s.store.LibraryTMDBIDs(models.TV)
	if err != nil {
		return nil, err
	}
	inLibrary := map[models.MediaType]map[int]bool{
		models.Movie: toSet(movieTMDBIDs),
		models.TV:    toSet(tvTMDBIDs),
	}

	results := make([]searchResultItem, 0, len(items))
	for _, item := range items {
		if item.MediaType == "person" {
			continue
		}
		if item.MediaType == "" {
			item.MediaType = defaultMT
		}
		mt := mediaTypeOf(item.MediaType)
		if mt == "" {
			continue
		}
		item.InLibrary = inLibrary[mt][item.ID]
		if _, err := s.store.GetRequest(mt, item.ID); err == nil {
			item.Requested = true
		}
		results = append(results, item)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchEnrichConcurrency)
	for i := range results {
		if mediaTypeOf(results[i].MediaType) != models.TV {
			continue
		}
		i := i
		g.Go(func() error {
			s.enrichSeasonCount(gctx, &results[i])
			return nil
		})
	}
	_ = g.Wait() // best-effort: enrichSeasonCount never returns an error

	return results, nil
}

func (s *Server) enrichSeasonCount(ctx context.Context, item *searchResultItem) {
	raw, err := s.tmdb.GetTV(ctx, item.ID)
	if err != nil {
		return
	}
	var d tvDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	item.NumberOfSeasons = d.NumberOfSeasons
}

// defaultMediaType mirrors the original's `data.media_type or "movie"`
// fallback for items TMDB returns with no media_type of their own.
func defaultMediaType(requested string) string {
	if requested == "movie" || requested == "tv" {
		return requested
	}
	return "movie"
}

func mediaTypeOf(tmdbMediaType string) models.MediaType {
	switch tmdbMediaType {
	case "movie":
		return models.Movie
	case "tv":
		return models.TV
	default:
		return ""
	}
}

func toSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
