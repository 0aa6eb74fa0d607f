package reconcile

import (
	"context"

	"arrbridge/internal/identity"
	"arrbridge/internal/models"
	"arrbridge/internal/store"
)

// strategy is one (precondition, action) pair in the fixed-order matching
// pipeline (§4.4 step 6). Evaluating the pipeline is a single loop over
// this slice — see runStrategies — rather than a hand-coded if/else chain.
type strategy struct {
	name    string
	applies func(mi *identity.MediaIdentity, ids showIDs) bool
	resolve func(ctx context.Context, e *Engine, mi *identity.MediaIdentity, ids showIDs) (*resolved, error)
}

var strategies = []strategy{s1, s2, s3, s4, s5}

// runStrategies tries each strategy in declared order and returns the
// first that both applies and produces a match. A strategy "applying" but
// finding no candidate falls through to the next strategy.
func (e *Engine) runStrategies(ctx context.Context, mi *identity.MediaIdentity, ids showIDs) (*resolved, error) {
	for _, s := range strategies {
		if !s.applies(mi, ids) {
			continue
		}
		r, err := s.resolve(ctx, e, mi, ids)
		if err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
	}
	return nil, nil
}

// S1: show_tmdb known -> conditional fulfillment directly on
// Request(media_type, show_tmdb).
var s1 = strategy{
	name:    "s1_direct_tmdb",
	applies: func(mi *identity.MediaIdentity, ids showIDs) bool { return ids.tmdb != 0 },
	resolve: func(ctx context.Context, e *Engine, mi *identity.MediaIdentity, ids showIDs) (*resolved, error) {
		return e.fulfillAndCache(mi.MediaType, ids.tmdb, mi.PlexGUID, ids.tvdb)
	},
}

// S2: show_tvdb known and media_type=tv -> find the request by tvdb_id,
// then redirect to S1-style fulfillment on its tmdb_id.
var s2 = strategy{
	name: "s2_tvdb_lookup",
	applies: func(mi *identity.MediaIdentity, ids showIDs) bool {
		return ids.tvdb != 0 && mi.MediaType == "tv"
	},
	resolve: func(ctx context.Context, e *Engine, mi *identity.MediaIdentity, ids showIDs) (*resolved, error) {
		matches, err := e.store.QueryRequestsByTVDBID(mi.MediaType, ids.tvdb)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, nil
		}
		return e.fulfillAndCache(mi.MediaType, matches[0].TMDBID, mi.PlexGUID, ids.tvdb)
	},
}

// S3: plex_guid present -> scan for a Request carrying the same cached
// plex_guid, then redirect to S1-style fulfillment.
var s3 = strategy{
	name:    "s3_plex_guid_scan",
	applies: func(mi *identity.MediaIdentity, ids showIDs) bool { return mi.PlexGUID != "" },
	resolve: func(ctx context.Context, e *Engine, mi *identity.MediaIdentity, ids showIDs) (*resolved, error) {
		matches, err := e.store.ScanRequestsByPlexGUID(mi.PlexGUID)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, nil
		}
		m := matches[0]
		return e.fulfillAndCache(m.MediaType, m.TMDBID, mi.PlexGUID, ids.tvdb)
	},
}

// S4: episode_tvdb_id present and no show tvdb id known yet (a GUID-cache
// hit already supplies one) -> TVDB reverse lookup to a series id, then
// query by that tvdb id. Even on a miss, caches plex_guid -> (nil,
// resolved_show_tvdb) so later episodes of the same unmatched show skip
// the TVDB call.
var s4 = strategy{
	name:    "s4_tvdb_reverse_lookup",
	applies: func(mi *identity.MediaIdentity, ids showIDs) bool { return mi.EpisodeTVDBID != 0 && ids.tvdb == 0 },
	resolve: func(ctx context.Context, e *Engine, mi *identity.MediaIdentity, ids showIDs) (*resolved, error) {
		resolvedTVDB, err := e.tvdb.SeriesIDForEpisode(ctx, mi.EpisodeTVDBID)
		if err != nil {
			return nil, err
		}
		if resolvedTVDB == 0 {
			return nil, nil
		}

		matches, err := e.store.QueryRequestsByTVDBID(mi.MediaType, resolvedTVDB)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			if mi.PlexGUID != "" {
				if err := e.store.PutGUIDCache(mi.PlexGUID, 0, resolvedTVDB); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}
		return e.fulfillAndCache(mi.MediaType, matches[0].TMDBID, mi.PlexGUID, resolvedTVDB)
	},
}

// S5: no ids of any kind -> normalized-title fallback. Ambiguity (more
// than one candidate) means no match, never a guess.
var s5 = strategy{
	name: "s5_title_fallback",
	applies: func(mi *identity.MediaIdentity, ids showIDs) bool {
		return ids.tmdb == 0 && ids.tvdb == 0 && mi.PlexGUID == "" && mi.EpisodeTVDBID == 0
	},
	resolve: func(ctx context.Context, e *Engine, mi *identity.MediaIdentity, ids showIDs) (*resolved, error) {
		normTitle := store.NormalizeTitle(mi.Title)
		matches, err := e.store.ScanRequestsByNormalizedTitle(mi.MediaType, normTitle, mi.Year, 1)
		if err != nil {
			return nil, err
		}
		if len(matches) != 1 {
			return nil, nil
		}
		m := matches[0]
		r, err := e.fulfillAndCache(m.MediaType, m.TMDBID, "", 0)
		if err != nil {
			return nil, err
		}
		if r != nil && r.fulfilledNow {
			if err := e.store.UpsertLibraryMember(&models.LibraryMember{
				MediaType: m.MediaType,
				TMDBID:    m.TMDBID,
				TVDBID:    m.TVDBID,
				Title:     m.Title,
			}); err != nil {
				return nil, err
			}
		}
		return r, nil
	},
}
