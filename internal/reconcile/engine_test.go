package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"arrbridge/internal/identity"
	"arrbridge/internal/models"
	"arrbridge/internal/storage"
	"arrbridge/internal/store"
	"arrbridge/internal/tvdb"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := store.New(db)
	tv := tvdb.New("")
	return New(s, tv, nil), s
}

func TestHandleWebhookS1DirectMatch(t *testing.T) {
	e, s := newTestEngine(t)
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 603, Title: "The Matrix", RequestedBy: "alice"}))

	w := &identity.PlexWebhook{Event: "library.new"}
	mi := &identity.MediaIdentity{MediaType: models.Movie, PlexType: "movie", Title: "The Matrix", TMDBID: 603, PlexGUID: "plex://movie/abc"}

	result, err := e.HandleWebhook(context.Background(), w, mi)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)
	require.True(t, result.MatchedRequest)
	require.True(t, result.LibraryGrew)

	req, err := s.GetRequest(models.Movie, 603)
	require.NoError(t, err)
	require.NotNil(t, req.AddedAt)
}

func TestHandleWebhookReplayIsIdempotent(t *testing.T) {
	e, s := newTestEngine(t)
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 603, Title: "The Matrix"}))

	w := &identity.PlexWebhook{Event: "library.new"}
	mi := &identity.MediaIdentity{MediaType: models.Movie, PlexType: "movie", Title: "The Matrix", TMDBID: 603}

	r1, err := e.HandleWebhook(context.Background(), w, mi)
	require.NoError(t, err)
	require.True(t, r1.MatchedRequest)

	r2, err := e.HandleWebhook(context.Background(), w, mi)
	require.NoError(t, err)
	require.False(t, r2.MatchedRequest)
}

func TestHandleWebhookWrongEventIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	w := &identity.PlexWebhook{Event: "media.play"}
	result, err := e.HandleWebhook(context.Background(), w, &identity.MediaIdentity{MediaType: models.Movie, TMDBID: 603})
	require.NoError(t, err)
	require.Equal(t, "ignored", result.Status)
}

func TestHandleWebhookUnsupportedMetadataIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	w := &identity.PlexWebhook{Event: "library.new"}
	result, err := e.HandleWebhook(context.Background(), w, nil)
	require.NoError(t, err)
	require.Equal(t, "ignored", result.Status)
}

func TestHandleWebhookServerNameFilter(t *testing.T) {
	payload := []byte(`{"event":"library.new","Server":{"title":"other"},"Metadata":{"type":"movie","title":"X","Guid":[{"id":"tmdb://1"}]}}`)
	w, mi, err := identity.ParsePlexWebhook(payload)
	require.NoError(t, err)

	e, _ := newTestEngine(t)
	e.ServerName = "home"
	result, err := e.HandleWebhook(context.Background(), w, mi)
	require.NoError(t, err)
	require.Equal(t, "ignored", result.Status)
}

func TestHandleWebhookEpisodeCacheMissThenHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			w.Write([]byte(`{"data":{"token":"tok"}}`))
		case "/episodes/999999":
			w.Write([]byte(`{"data":{"seriesId":75897}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	s := store.New(db)
	tv := tvdb.NewWithBaseURL("key", srv.URL)
	e := New(s, tv, nil)

	w := &identity.PlexWebhook{Event: "library.new"}
	mi1 := &identity.MediaIdentity{MediaType: models.TV, PlexType: "episode", Title: "Show", PlexGUID: "plex://show/abc", EpisodeTVDBID: 999999}
	r1, err := e.HandleWebhook(context.Background(), w, mi1)
	require.NoError(t, err)
	require.Equal(t, "ok", r1.Status)
	require.False(t, r1.MatchedRequest)

	entry, ok, err := s.GetGUIDCache("plex://show/abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 75897, entry.ShowTVDBID)

	// second episode of the same show hits the cache; no further TVDB call
	// is needed because the resolved ids are already cached.
	mi2 := &identity.MediaIdentity{MediaType: models.TV, PlexType: "episode", Title: "Show", PlexGUID: "plex://show/abc", EpisodeTVDBID: 888888}
	r2, err := e.HandleWebhook(context.Background(), w, mi2)
	require.NoError(t, err)
	require.Equal(t, "ok", r2.Status)
}

func TestHandleSyncClearAndMark(t *testing.T) {
	e, s := newTestEngine(t)
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, s.UpsertLibraryMember(&models.LibraryMember{MediaType: models.Movie, TMDBID: id, Title: "old"}))
	}
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 4, Title: "X"}))

	result, err := e.HandleSync(context.Background(), models.Movie, []identity.SyncItem{
		{TMDBID: 4, Title: "X"},
		{TMDBID: 5, Title: "Y"},
	}, true)
	require.NoError(t, err)
	require.Equal(t, 2, result.SyncedCount)
	require.Equal(t, 1, result.MarkedCount)

	ids, err := s.LibraryTMDBIDs(models.Movie)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{4, 5}, ids)
}

func TestHandleWebhookS5TitleFallback(t *testing.T) {
	e, s := newTestEngine(t)
	require.NoError(t, s.CreateRequest(&models.Request{MediaType: models.Movie, TMDBID: 603, Title: "The Matrix", Year: 1999}))

	w := &identity.PlexWebhook{Event: "library.new"}
	mi := &identity.MediaIdentity{MediaType: models.Movie, PlexType: "movie", Title: "The Matrix", Year: 1999}

	result, err := e.HandleWebhook(context.Background(), w, mi)
	require.NoError(t, err)
	require.True(t, result.MatchedRequest)
}
