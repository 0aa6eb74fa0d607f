// Package store is the typed repository layer over internal/storage: one
// file per entity family, translating models.* structs to and from
// storage.Item and the partition/sort keys laid out in the data model.
// This mirrors the teacher's internal/store package split (sessions.go,
// users.go, history.go, ...), one file per concern, but against the
// generic key-partitioned Store instead of hand-written SQL per table.
package store

import (
	"fmt"

	"arrbridge/internal/models"
	"arrbridge/internal/storage"
)

func requestKey(mediaType models.MediaType, tmdbID int) storage.Key {
	return storage.Key{Partition: string(mediaType), Sort: fmt.Sprintf("%d", tmdbID)}
}

func libraryPartition(mediaType models.MediaType) string {
	return "LIB#" + string(mediaType)
}

func libraryKey(mediaType models.MediaType, tmdbID int) storage.Key {
	return storage.Key{Partition: libraryPartition(mediaType), Sort: fmt.Sprintf("%d", tmdbID)}
}

const guidCachePartition = "GUIDCACHE"

func guidCacheKey(plexGUID string) storage.Key {
	return storage.Key{Partition: guidCachePartition, Sort: plexGUID}
}

func rateLimitKey(ip string) storage.Key {
	return storage.Key{Partition: "RATELIMIT#" + ip, Sort: "0"}
}

const pushPartition = "PUSH"

func pushKey(userName string) storage.Key {
	return storage.Key{Partition: pushPartition, Sort: userName}
}

// Store wraps a storage.Store with typed accessors for each entity family.
type Store struct {
	db storage.Store
}

func New(db storage.Store) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// Raw exposes the underlying generic store, for the background TTL reaper.
func (s *Store) Raw() storage.Store { return s.db }
