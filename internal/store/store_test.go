package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arrbridge/internal/models"
	"arrbridge/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestCreateRequestUniqueness(t *testing.T) {
	s := newTestStore(t)
	r := &models.Request{MediaType: models.Movie, TMDBID: 603, Title: "The Matrix"}
	require.NoError(t, s.CreateRequest(r))
	require.ErrorIs(t, s.CreateRequest(r), ErrConditionFailed)
}

func TestFulfillRequestExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 603, Title: "The Matrix"}))

	req, fulfilled, err := s.FulfillRequest(models.Movie, 603, time.Now())
	require.NoError(t, err)
	require.True(t, fulfilled)
	require.NotNil(t, req.AddedAt)

	req2, fulfilled2, err := s.FulfillRequest(models.Movie, 603, time.Now())
	require.NoError(t, err)
	require.False(t, fulfilled2)
	require.Equal(t, req.AddedAt.Unix(), req2.AddedAt.Unix())
}

func TestFulfillRequestMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.FulfillRequest(models.Movie, 999, time.Now())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListRequestsSortedByCreatedAtDesc(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 1, Title: "A", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 2, Title: "B", CreatedAt: now}))

	reqs, err := s.ListRequests(models.Movie)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.Equal(t, 2, reqs[0].TMDBID)
	require.Equal(t, 1, reqs[1].TMDBID)
}

func TestLibraryMemberUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	m := &models.LibraryMember{MediaType: models.TV, TMDBID: 100, TVDBID: 111, Title: "Show"}
	require.NoError(t, s.UpsertLibraryMember(m))
	require.NoError(t, s.UpsertLibraryMember(m))

	ids, err := s.LibraryTMDBIDs(models.TV)
	require.NoError(t, err)
	require.Equal(t, []int{100}, ids)
}

func TestClearLibraryPartition(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, s.UpsertLibraryMember(&models.LibraryMember{MediaType: models.Movie, TMDBID: id, Title: "x"}))
	}
	require.NoError(t, s.ClearLibraryPartition(models.Movie))
	ids, err := s.LibraryTMDBIDs(models.Movie)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestGUIDCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutGUIDCache("plex://show/abc", 0, 75897))
	entry, ok, err := s.GetGUIDCache("plex://show/abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, entry.ShowTMDBID)
	require.Equal(t, 75897, entry.ShowTVDBID)

	_, ok, err = s.GetGUIDCache("plex://show/missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimitSlidingWindow(t *testing.T) {
	s := newTestStore(t)
	window := 900 * time.Second

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordFailedAttempt("1.2.3.4", window))
	}
	allowed, err := s.RateLimitStatus("1.2.3.4", 3, window)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, s.ClearRateLimit("1.2.3.4"))
	allowed, err = s.RateLimitStatus("1.2.3.4", 3, window)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestPushSubscriptionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sub := &models.PushSubscription{UserName: "alice", Endpoint: "https://push.example/1", P256dh: "p", Auth: "a"}
	require.NoError(t, s.PutPushSubscription(sub))

	got, err := s.GetPushSubscription("alice")
	require.NoError(t, err)
	require.Equal(t, sub.Endpoint, got.Endpoint)

	require.NoError(t, s.DeletePushSubscription("alice"))
	_, err = s.GetPushSubscription("alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizeTitle(t *testing.T) {
	require.Equal(t, "the matrix", NormalizeTitle("The Matrix!"))
	require.Equal(t, "the matrix", NormalizeTitle("  The   Matrix  "))
	require.Equal(t, "spiderman", NormalizeTitle("Spider-Man"))
}

func TestScanRequestsByNormalizedTitle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 1, Title: "The Matrix", Year: 1999}))

	matches, err := s.ScanRequestsByNormalizedTitle(models.Movie, "the matrix", 1999, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = s.ScanRequestsByNormalizedTitle(models.Movie, "the matrix", 2010, 1)
	require.NoError(t, err)
	require.Empty(t, matches)
}
