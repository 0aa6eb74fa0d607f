// Package reconcile implements the request-to-library reconciliation
// engine: given a normalized MediaIdentity from a webhook or sync item, it
// tries a fixed sequence of matching strategies to find and atomically
// fulfill a pending request. Strategies are data, not a hand-coded
// if/else chain — see strategies.go — generalizing the teacher's
// internal/rules.Engine evaluator-registry pattern from an unordered map
// to an ordered slice, since these must be tried in sequence.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"arrbridge/internal/identity"
	"arrbridge/internal/models"
	"arrbridge/internal/notifier"
	"arrbridge/internal/store"
	"arrbridge/internal/tvdb"
)

// Engine owns no state beyond its collaborators; all mutable state lives
// in Storage (see internal/storage), matching the "process-wide state"
// design note.
type Engine struct {
	store    *store.Store
	tvdb     *tvdb.Client
	notifier *notifier.Notifier
	// ServerName, when non-empty, filters webhook events to a single Plex
	// server title.
	ServerName string
}

func New(s *store.Store, t *tvdb.Client, n *notifier.Notifier) *Engine {
	return &Engine{store: s, tvdb: t, notifier: n}
}

// WebhookResult is the structured outcome of HandleWebhook (§4.4 step 8).
type WebhookResult struct {
	Status           string `json:"status"`
	Reason           string `json:"reason,omitempty"`
	LibraryGrew      bool   `json:"library_grew"`
	MatchedRequest   bool   `json:"matched_request"`
	NotificationSent bool   `json:"notification_sent"`
}

// showIDs carries the resolved show-level identifiers through a webhook's
// strategy pipeline, alongside the normalized identity itself.
type showIDs struct {
	tmdb int
	tvdb int
}

// HandleWebhook implements §4.4(a). It never returns an error for
// business-level rejections (wrong event, wrong server, unsupported type)
// — those come back as a WebhookResult with Status "ignored"; the caller
// always replies 200 so Plex does not retry indefinitely. Errors are
// reserved for storage/infra failures.
func (e *Engine) HandleWebhook(ctx context.Context, w *identity.PlexWebhook, mi *identity.MediaIdentity) (WebhookResult, error) {
	if w.Event != "library.new" {
		return WebhookResult{Status: "ignored", Reason: "event is not library.new"}, nil
	}
	if e.ServerName != "" && w.Server.Title != e.ServerName {
		return WebhookResult{Status: "ignored", Reason: "server title does not match"}, nil
	}
	if mi == nil {
		return WebhookResult{Status: "ignored", Reason: "unsupported metadata type"}, nil
	}

	ids, err := e.resolveShowIDs(mi)
	if err != nil {
		return WebhookResult{}, err
	}

	libraryGrew := false
	if ids.tmdb != 0 {
		if err := e.store.UpsertLibraryMember(&models.LibraryMember{
			MediaType: mi.MediaType,
			TMDBID:    ids.tmdb,
			TVDBID:    ids.tvdb,
			Title:     mi.Title,
		}); err != nil {
			return WebhookResult{}, err
		}
		libraryGrew = true
	}

	resolved, err := e.runStrategies(ctx, mi, ids)
	if err != nil {
		return WebhookResult{}, err
	}

	result := WebhookResult{Status: "ok", LibraryGrew: libraryGrew}
	if resolved == nil {
		return result, nil
	}
	result.MatchedRequest = resolved.fulfilledNow

	if resolved.fulfilledNow && e.notifier != nil {
		if err := e.notifier.Notify(ctx, resolved.request); err != nil {
			log.Printf("reconcile: notify failed: %v", err)
		} else {
			result.NotificationSent = true
		}
	}
	return result, nil
}

// resolveShowIDs applies the "show-id resolution for episode/season" rule:
// for item-scoped events, consult the GUID cache; movies/shows already
// carry show-level ids directly from identity parsing.
func (e *Engine) resolveShowIDs(mi *identity.MediaIdentity) (showIDs, error) {
	if mi.PlexType != "episode" && mi.PlexType != "season" {
		return showIDs{tmdb: mi.TMDBID, tvdb: mi.TVDBID}, nil
	}
	if mi.PlexGUID == "" {
		return showIDs{}, nil
	}
	entry, ok, err := e.store.GetGUIDCache(mi.PlexGUID)
	if err != nil {
		return showIDs{}, err
	}
	if !ok {
		return showIDs{}, nil
	}
	return showIDs{tmdb: entry.ShowTMDBID, tvdb: entry.ShowTVDBID}, nil
}

// resolved is the outcome of a single matching strategy.
type resolved struct {
	request      *models.Request
	fulfilledNow bool
}

func (e *Engine) fulfillAndCache(mediaType models.MediaType, tmdbID int, plexGUID string, showTVDBID int) (*resolved, error) {
	req, fulfilledNow, err := e.store.FulfillRequest(mediaType, tmdbID, time.Now())
	if errors.Is(err, store.ErrNotFound) {
		// No request for this id: the strategy found no candidate.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if plexGUID != "" {
		if err := e.store.PutGUIDCache(plexGUID, tmdbID, showTVDBID); err != nil {
			return nil, err
		}
	}
	return &resolved{request: req, fulfilledNow: fulfilledNow}, nil
}

// SyncResult is the outcome of HandleSync (§4.4(b), bulk library sync).
// Field names follow the literal response shape in the spec's bulk-sync
// scenario: {synced, marked_as_added}.
type SyncResult struct {
	SyncedCount int `json:"synced"`
	MarkedCount int `json:"marked_as_added"`
}

func (e *Engine) HandleSync(ctx context.Context, mediaType models.MediaType, items []identity.SyncItem, clear bool) (SyncResult, error) {
	if clear {
		if err := e.store.ClearLibraryPartition(mediaType); err != nil {
			return SyncResult{}, err
		}
	}

	var result SyncResult
	for _, item := range items {
		if err := e.store.UpsertLibraryMember(&models.LibraryMember{
			MediaType: mediaType,
			TMDBID:    item.TMDBID,
			TVDBID:    item.TVDBID,
			Title:     item.Title,
		}); err != nil {
			return result, err
		}
		result.SyncedCount++

		if item.TMDBID == 0 {
			continue
		}
		r, fulfilledNow, err := e.store.FulfillRequest(mediaType, item.TMDBID, time.Now())
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return result, err
		}
		if fulfilledNow {
			result.MarkedCount++
			if e.notifier != nil {
				if err := e.notifier.Notify(ctx, r); err != nil {
					log.Printf("reconcile: notify failed: %v", err)
				}
			}
		}
	}
	return result, nil
}
