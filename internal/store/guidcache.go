package store

import (
	"time"

	"arrbridge/internal/models"
	"arrbridge/internal/storage"
)

// PutGUIDCache writes (overwrites) the show-level ids resolved for a Plex
// GUID. showTMDBID/showTVDBID of 0 means "unresolved" (still cached to
// avoid repeat TVDB calls — see S4).
func (s *Store) PutGUIDCache(plexGUID string, showTMDBID, showTVDBID int) error {
	item := storage.Item{"cached_at": time.Now().UTC().Format(time.RFC3339)}
	if showTMDBID != 0 {
		item["show_tmdb_id"] = int64(showTMDBID)
	}
	if showTVDBID != 0 {
		item["show_tvdb_id"] = int64(showTVDBID)
	}
	return s.db.Put(guidCacheKey(plexGUID), item)
}

// GetGUIDCache looks up a previously cached Plex GUID. ok is false on a
// cache miss; the entry is advisory only (see internal/reconcile).
func (s *Store) GetGUIDCache(plexGUID string) (entry models.PlexGUIDCacheEntry, ok bool, err error) {
	item, gerr := s.db.Get(guidCacheKey(plexGUID))
	if gerr == storage.ErrNotFound {
		return models.PlexGUIDCacheEntry{}, false, nil
	}
	if gerr != nil {
		return models.PlexGUIDCacheEntry{}, false, gerr
	}
	entry.PlexGUID = plexGUID
	if v, ok := item["show_tmdb_id"]; ok {
		entry.ShowTMDBID = int(toInt64(v))
	}
	if v, ok := item["show_tvdb_id"]; ok {
		entry.ShowTVDBID = int(toInt64(v))
	}
	return entry, true, nil
}
