package store

import (
	"time"

	"arrbridge/internal/models"
	"arrbridge/internal/storage"
)

func libraryMemberToItem(m *models.LibraryMember) storage.Item {
	item := storage.Item{
		"tmdb_id":   int64(m.TMDBID),
		"title":     m.Title,
		"synced_at": m.SyncedAt.UTC().Format(time.RFC3339),
	}
	if m.TVDBID != 0 {
		item["tvdb_id"] = int64(m.TVDBID)
	}
	return item
}

func itemToLibraryMember(mediaType models.MediaType, tmdbID int, item storage.Item) *models.LibraryMember {
	m := &models.LibraryMember{MediaType: mediaType, TMDBID: tmdbID}
	if v, ok := item["title"].(string); ok {
		m.Title = v
	}
	if v, ok := item["tvdb_id"]; ok {
		m.TVDBID = int(toInt64(v))
	}
	if v, ok := item["synced_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			m.SyncedAt = t
		}
	}
	return m
}

// UpsertLibraryMember writes (or overwrites) a LibraryMember — naturally
// idempotent, last-writer-wins.
func (s *Store) UpsertLibraryMember(m *models.LibraryMember) error {
	if m.SyncedAt.IsZero() {
		m.SyncedAt = time.Now().UTC()
	}
	return s.db.Put(libraryKey(m.MediaType, m.TMDBID), libraryMemberToItem(m))
}

// ListLibraryMembers returns every LibraryMember for mediaType.
func (s *Store) ListLibraryMembers(mediaType models.MediaType) ([]*models.LibraryMember, error) {
	items, err := s.queryLibraryPartition(mediaType)
	if err != nil {
		return nil, err
	}
	out := make([]*models.LibraryMember, 0, len(items))
	for _, item := range items {
		tmdbID := int(toInt64(item["tmdb_id"]))
		out = append(out, itemToLibraryMember(mediaType, tmdbID, item))
	}
	return out, nil
}

// LibraryTMDBIDs returns the tmdb_id of every LibraryMember for mediaType,
// used to answer GET /api/library-status.
func (s *Store) LibraryTMDBIDs(mediaType models.MediaType) ([]int, error) {
	items, err := s.queryLibraryPartition(mediaType)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		if v, ok := item["tmdb_id"]; ok {
			out = append(out, int(toInt64(v)))
		}
	}
	return out, nil
}

// IsLibraryMember reports whether tmdbID is present in mediaType's library.
func (s *Store) IsLibraryMember(mediaType models.MediaType, tmdbID int) (bool, error) {
	_, err := s.db.Get(libraryKey(mediaType, tmdbID))
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearLibraryPartition deletes every LibraryMember row for mediaType; used
// by bulk sync's clear flag.
func (s *Store) ClearLibraryPartition(mediaType models.MediaType) error {
	items, err := s.queryLibraryPartition(mediaType)
	if err != nil {
		return err
	}
	for _, item := range items {
		tmdbID := int(toInt64(item["tmdb_id"]))
		if err := s.db.Delete(libraryKey(mediaType, tmdbID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) queryLibraryPartition(mediaType models.MediaType) ([]storage.Item, error) {
	return s.db.Query(storage.QueryInput{Partition: libraryPartition(mediaType)})
}
