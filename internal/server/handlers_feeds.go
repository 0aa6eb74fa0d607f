package server

import (
	"encoding/xml"
	"fmt"
	"net/http"

	"arrbridge/internal/models"
)

type radarrListItem struct {
	Title     string `json:"title"`
	IMDBID    string `json:"imdb_id,omitempty"`
	PosterURL string `json:"poster_url,omitempty"`
}

// handleRadarrList answers the downstream Radarr poller: every pending
// movie request, in the shape a Radarr custom list import expects.
func (s *Server) handleRadarrList(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.store.ListRequests(models.Movie)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]radarrListItem, 0, len(reqs))
	for _, req := range reqs {
		if !req.Pending() {
			continue
		}
		item := radarrListItem{Title: req.Title, IMDBID: req.IMDBID}
		if req.PosterPath != "" {
			item.PosterURL = "https://image.tmdb.org/t/p/w500" + req.PosterPath
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

type sonarrListItem struct {
	TVDBID string `json:"tvdbId"`
}

// handleSonarrList answers the downstream Sonarr poller: every pending TV
// request that has a resolved show-level tvdb_id. Sonarr's list import
// expects tvdbId as a string, not a number.
func (s *Server) handleSonarrList(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.store.ListRequests(models.TV)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]sonarrListItem, 0, len(reqs))
	for _, req := range reqs {
		if !req.Pending() || req.TVDBID == 0 {
			continue
		}
		out = append(out, sonarrListItem{TVDBID: fmt.Sprintf("%d", req.TVDBID)})
	}
	writeJSON(w, http.StatusOK, out)
}

// rssFeed and rssItem mirror the minimal RSS 2.0 shape consumers like
// Radarr/Sonarr's "Torznab"-adjacent list parsers and feed readers expect;
// supplemented from original_source/backend/main.py's /rss/* endpoints,
// which the distilled specification dropped.
type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Version string    `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description,omitempty"`
	GUID        string `xml:"guid"`
}

func pendingRSSItems(reqs []*models.Request) []rssItem {
	out := make([]rssItem, 0, len(reqs))
	for _, req := range reqs {
		if !req.Pending() {
			continue
		}
		out = append(out, rssItem{
			Title:       req.Title,
			Description: req.Overview,
			GUID:        fmt.Sprintf("%s-%d", req.MediaType, req.TMDBID),
		})
	}
	return out
}

func (s *Server) writeRSS(w http.ResponseWriter, title string, mediaType models.MediaType) {
	reqs, err := s.store.ListRequests(mediaType)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	feed := rssFeed{Version: "2.0", Channel: rssChannel{Title: title, Items: pendingRSSItems(reqs)}}
	w.Header().Set("Content-Type", "application/rss+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(feed)
}

func (s *Server) handleRSSMovies(w http.ResponseWriter, r *http.Request) {
	s.writeRSS(w, "Pending movie requests", models.Movie)
}

func (s *Server) handleRSSTV(w http.ResponseWriter, r *http.Request) {
	s.writeRSS(w, "Pending TV requests", models.TV)
}

func (s *Server) handleRSSAll(w http.ResponseWriter, r *http.Request) {
	movies, err := s.store.ListRequests(models.Movie)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	tv, err := s.store.ListRequests(models.TV)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	items := append(pendingRSSItems(movies), pendingRSSItems(tv)...)
	feed := rssFeed{Version: "2.0", Channel: rssChannel{Title: "All pending requests", Items: items}}
	w.Header().Set("Content-Type", "application/rss+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(feed)
}

// handleFeedsIndex lists the feed endpoints available to a caller holding
// a valid feed token, so a downstream consumer can discover them without
// reading documentation.
func (s *Server) handleFeedsIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"feeds": {"/list/radarr", "/list/sonarr", "/rss/movies", "/rss/tv", "/rss/all"},
	})
}
