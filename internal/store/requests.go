package store

import (
	"time"

	"arrbridge/internal/models"
	"arrbridge/internal/storage"
)

func requestToItem(r *models.Request) storage.Item {
	item := storage.Item{
		"media_type":   string(r.MediaType),
		"tmdb_id":      int64(r.TMDBID),
		"title":        r.Title,
		"requested_by": r.RequestedBy,
		"created_at":   r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Year != 0 {
		item["year"] = int64(r.Year)
	}
	if r.Overview != "" {
		item["overview"] = r.Overview
	}
	if r.PosterPath != "" {
		item["poster_path"] = r.PosterPath
	}
	if r.IMDBID != "" {
		item["imdb_id"] = r.IMDBID
	}
	if r.TVDBID != 0 {
		item["tvdb_id"] = int64(r.TVDBID)
	}
	if r.PlexGUID != "" {
		item["plex_guid"] = r.PlexGUID
	}
	if r.AddedAt != nil {
		item["added_at"] = r.AddedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func itemToRequest(mediaType models.MediaType, tmdbID int, item storage.Item) *models.Request {
	r := &models.Request{MediaType: mediaType, TMDBID: tmdbID}
	if v, ok := item["title"].(string); ok {
		r.Title = v
	}
	if v, ok := item["year"]; ok {
		r.Year = int(toInt64(v))
	}
	if v, ok := item["overview"].(string); ok {
		r.Overview = v
	}
	if v, ok := item["poster_path"].(string); ok {
		r.PosterPath = v
	}
	if v, ok := item["imdb_id"].(string); ok {
		r.IMDBID = v
	}
	if v, ok := item["tvdb_id"]; ok {
		r.TVDBID = int(toInt64(v))
	}
	if v, ok := item["requested_by"].(string); ok {
		r.RequestedBy = v
	}
	if v, ok := item["plex_guid"].(string); ok {
		r.PlexGUID = v
	}
	if v, ok := item["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			r.CreatedAt = t
		}
	}
	if v, ok := item["added_at"]; ok && v != nil {
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				r.AddedAt = &t
			}
		}
	}
	return r
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// ErrConditionFailed re-exports storage.ErrConditionFailed so callers of
// this package need not import internal/storage for errors.Is checks.
var ErrConditionFailed = storage.ErrConditionFailed

// ErrNotFound re-exports storage.ErrNotFound.
var ErrNotFound = storage.ErrNotFound

// CreateRequest inserts a new pending request. Fails with
// ErrConditionFailed if (media_type, tmdb_id) already exists — the
// invariant that (media_type, tmdb_id) is unique.
func (s *Store) CreateRequest(r *models.Request) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return s.db.PutIfAbsent(requestKey(r.MediaType, r.TMDBID), requestToItem(r))
}

// GetRequest fetches a single request, or ErrNotFound.
func (s *Store) GetRequest(mediaType models.MediaType, tmdbID int) (*models.Request, error) {
	item, err := s.db.Get(requestKey(mediaType, tmdbID))
	if err != nil {
		return nil, err
	}
	return itemToRequest(mediaType, tmdbID, item), nil
}

// DeleteRequest removes a request (pending or fulfilled).
func (s *Store) DeleteRequest(mediaType models.MediaType, tmdbID int) error {
	return s.db.Delete(requestKey(mediaType, tmdbID))
}

// ListRequests returns every request for mediaType ("" for both), sorted by
// CreatedAt descending.
func (s *Store) ListRequests(mediaType models.MediaType) ([]*models.Request, error) {
	var mediaTypes []models.MediaType
	if mediaType == "" {
		mediaTypes = []models.MediaType{models.Movie, models.TV}
	} else {
		mediaTypes = []models.MediaType{mediaType}
	}

	var out []*models.Request
	for _, mt := range mediaTypes {
		items, err := s.db.Query(storage.QueryInput{Partition: string(mt)})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			out = append(out, itemToRequestFromQuery(mt, item))
		}
	}
	sortRequestsByCreatedAtDesc(out)
	return out, nil
}

// itemToRequestFromQuery reconstructs tmdb_id from the stored sort key; the
// generic Query path doesn't carry the sort key alongside the item, so
// requests also self-describe their tmdb_id as an attribute for listing.
func itemToRequestFromQuery(mt models.MediaType, item storage.Item) *models.Request {
	tmdbID := 0
	if v, ok := item["tmdb_id"]; ok {
		tmdbID = int(toInt64(v))
	}
	return itemToRequest(mt, tmdbID, item)
}

func sortRequestsByCreatedAtDesc(reqs []*models.Request) {
	for i := 1; i < len(reqs); i++ {
		for j := i; j > 0 && reqs[j].CreatedAt.After(reqs[j-1].CreatedAt); j-- {
			reqs[j], reqs[j-1] = reqs[j-1], reqs[j]
		}
	}
}

// FulfillRequest atomically sets added_at := now IF added_at is absent.
// Returns (request, true, nil) when this call performed the fulfillment,
// (request, false, nil) when the request was already fulfilled (replay),
// or (nil, false, ErrNotFound) when the request does not exist.
func (s *Store) FulfillRequest(mediaType models.MediaType, tmdbID int, now time.Time) (*models.Request, bool, error) {
	if _, err := s.db.Get(requestKey(mediaType, tmdbID)); err != nil {
		return nil, false, err
	}
	item, err := s.db.Update(storage.UpdateInput{
		Key:       requestKey(mediaType, tmdbID),
		Set:       map[string]any{"added_at": now.UTC().Format(time.RFC3339)},
		Condition: storage.Condition{AttrNotExists: "added_at"},
		Return:    storage.ReturnAllNew,
	})
	if err == storage.ErrConditionFailed {
		existing, gerr := s.GetRequest(mediaType, tmdbID)
		return existing, false, gerr
	}
	if err != nil {
		return nil, false, err
	}
	return itemToRequest(mediaType, tmdbID, item), true, nil
}

// QueryRequestsByTVDBID scans the mediaType partition for the request
// carrying the given show-level tvdb_id (S2).
func (s *Store) QueryRequestsByTVDBID(mediaType models.MediaType, tvdbID int) ([]*models.Request, error) {
	items, err := s.db.Query(storage.QueryInput{
		Partition: string(mediaType),
		Filter: func(item storage.Item) bool {
			v, ok := item["tvdb_id"]
			return ok && int(toInt64(v)) == tvdbID
		},
	})
	if err != nil {
		return nil, err
	}
	return itemsToRequests(mediaType, items), nil
}

// ScanRequestsByPlexGUID scans every request for a matching cached
// plex_guid (S3).
func (s *Store) ScanRequestsByPlexGUID(plexGUID string) ([]*models.Request, error) {
	items, err := s.db.Scan(storage.ScanInput{
		Filter: func(item storage.Item) bool {
			v, _ := item["plex_guid"].(string)
			return v == plexGUID
		},
	})
	if err != nil {
		return nil, err
	}
	return scannedItemsToRequests(items), nil
}

// ScanRequestsByNormalizedTitle scans for requests in mediaType whose title
// normalizes (lowercase, punctuation stripped, whitespace collapsed) to
// normTitle, optionally constrained to within yearTolerance of year (S5).
func (s *Store) ScanRequestsByNormalizedTitle(mediaType models.MediaType, normTitle string, year int, yearTolerance int) ([]*models.Request, error) {
	items, err := s.db.Query(storage.QueryInput{
		Partition: string(mediaType),
		Filter: func(item storage.Item) bool {
			title, _ := item["title"].(string)
			if NormalizeTitle(title) != normTitle {
				return false
			}
			if year == 0 {
				return true
			}
			itemYear := int(toInt64(item["year"]))
			diff := itemYear - year
			if diff < 0 {
				diff = -diff
			}
			return diff <= yearTolerance
		},
	})
	if err != nil {
		return nil, err
	}
	return itemsToRequests(mediaType, items), nil
}

func itemsToRequests(mt models.MediaType, items []storage.Item) []*models.Request {
	out := make([]*models.Request, 0, len(items))
	for _, item := range items {
		out = append(out, itemToRequestFromQuery(mt, item))
	}
	return out
}

// scannedItemsToRequests reconstructs media type from the item's partition
// marker recorded at write time (see requestToItem / Put), since Scan
// results span both movie and tv partitions.
func scannedItemsToRequests(items []storage.Item) []*models.Request {
	out := make([]*models.Request, 0, len(items))
	for _, item := range items {
		mt, _ := item["media_type"].(string)
		out = append(out, itemToRequestFromQuery(models.MediaType(mt), item))
	}
	return out
}

