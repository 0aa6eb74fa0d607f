// Package identity normalizes inbound Plex webhook payloads and library
// sync items into a single MediaIdentity shape, applying the show vs.
// episode/season id-scoping rules the reconciliation engine depends on.
package identity

import (
	"encoding/json"
	"fmt"
	"strings"

	"arrbridge/internal/models"
)

// MediaIdentity is the normalized output of parsing one Plex event or sync
// item. A nil *MediaIdentity (with nil error) means "unsupported type,
// ignore" — never an error by itself.
type MediaIdentity struct {
	MediaType      models.MediaType
	PlexType       string
	Title          string
	Year           int
	TMDBID         int
	TVDBID         int
	IMDBID         string
	PlexGUID       string
	EpisodeTVDBID  int
}

type plexGUID struct {
	ID string `json:"id"`
}

type plexMetadata struct {
	Type             string     `json:"type"`
	Title            string     `json:"title"`
	ParentTitle      string     `json:"parentTitle"`
	GrandparentTitle string     `json:"grandparentTitle"`
	Year             int        `json:"year"`
	ParentYear       int        `json:"parentYear"`
	GrandparentYear  int        `json:"grandparentYear"`
	GUID             string     `json:"guid"`
	ParentGUID       string     `json:"parentGuid"`
	GrandparentGUID  string     `json:"grandparentGuid"`
	Guid             []plexGUID `json:"Guid"`
}

type plexServer struct {
	Title string `json:"title"`
}

// PlexWebhook is the subset of a Plex webhook payload reconciliation
// needs.
type PlexWebhook struct {
	Event    string       `json:"event"`
	Server   plexServer   `json:"Server"`
	Metadata plexMetadata `json:"Metadata"`
}

// ParsePlexWebhookPayload unmarshals the raw multipart "payload" field.
func ParsePlexWebhookPayload(raw []byte) (*PlexWebhook, error) {
	var w PlexWebhook
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("identity: parsing webhook payload: %w", err)
	}
	return &w, nil
}

// guidValues extracts the raw values for a given URI scheme
// ("tmdb"/"tvdb"/"imdb") out of a Metadata.Guid array, e.g.
// "tmdb://603" -> "603".
func guidValues(guids []plexGUID) map[string]string {
	out := map[string]string{}
	for _, g := range guids {
		scheme, value, ok := strings.Cut(g.ID, "://")
		if !ok {
			continue
		}
		out[scheme] = value
	}
	return out
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// FromPlexMetadata normalizes one Metadata block per the type-specific
// rules in the data model: movie/show carry show-level ids as-is; season
// drops its (season-scoped) ids entirely; episode demotes its tvdb id to
// EpisodeTVDBID and drops its (episode-scoped) tmdb id. Returns nil for
// any other Metadata.type.
func FromPlexMetadata(m plexMetadata) *MediaIdentity {
	ids := guidValues(m.Guid)

	switch m.Type {
	case "movie":
		return &MediaIdentity{
			MediaType: models.Movie,
			PlexType:  m.Type,
			Title:     m.Title,
			Year:      m.Year,
			TMDBID:    atoi(ids["tmdb"]),
			TVDBID:    atoi(ids["tvdb"]),
			IMDBID:    ids["imdb"],
			PlexGUID:  m.GUID,
		}
	case "show":
		return &MediaIdentity{
			MediaType: models.TV,
			PlexType:  m.Type,
			Title:     m.Title,
			Year:      m.Year,
			TMDBID:    atoi(ids["tmdb"]),
			TVDBID:    atoi(ids["tvdb"]),
			IMDBID:    ids["imdb"],
			PlexGUID:  m.GUID,
		}
	case "season":
		// Season-scoped ids would poison the show-level cache; drop them.
		return &MediaIdentity{
			MediaType: models.TV,
			PlexType:  m.Type,
			Title:     m.ParentTitle,
			Year:      m.ParentYear,
			PlexGUID:  m.ParentGUID,
		}
	case "episode":
		// The tvdb id in the Guid array is episode-scoped; it becomes
		// EpisodeTVDBID for the C3 reverse lookup, never the show TVDBID.
		return &MediaIdentity{
			MediaType:     models.TV,
			PlexType:      m.Type,
			Title:         m.GrandparentTitle,
			Year:          m.GrandparentYear,
			PlexGUID:      m.GrandparentGUID,
			EpisodeTVDBID: atoi(ids["tvdb"]),
		}
	default:
		return nil
	}
}

// ParsePlexWebhook is the end-to-end entry point: parse the payload, then
// normalize its Metadata block.
func ParsePlexWebhook(raw []byte) (*PlexWebhook, *MediaIdentity, error) {
	w, err := ParsePlexWebhookPayload(raw)
	if err != nil {
		return nil, nil, err
	}
	return w, FromPlexMetadata(w.Metadata), nil
}

// SyncItem is one element of a bulk library-sync array.
type SyncItem struct {
	TMDBID int    `json:"tmdb_id"`
	TVDBID int    `json:"tvdb_id"`
	Title  string `json:"title"`
}
