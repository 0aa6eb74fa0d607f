package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/multi", r.URL.Path)
		require.Equal(t, "matrix", r.URL.Query().Get("query"))
		w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix"}]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("key", srv.URL)
	raw, err := c.Search(context.Background(), "matrix", 0)
	require.NoError(t, err)
	require.Contains(t, string(raw), "The Matrix")
}

func TestDoSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status_message":"invalid key"}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("bad-key", srv.URL)
	_, err := c.Search(context.Background(), "matrix", 0)
	require.Error(t, err)
}

func TestSearchMovie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/movie", r.URL.Path)
		require.Equal(t, "matrix", r.URL.Query().Get("query"))
		w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix"}]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("key", srv.URL)
	raw, err := c.SearchMovie(context.Background(), "matrix", 0)
	require.NoError(t, err)
	require.Contains(t, string(raw), "The Matrix")
}

func TestSearchTV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/tv", r.URL.Path)
		require.Equal(t, "lost", r.URL.Query().Get("query"))
		w.Write([]byte(`{"results":[{"id":4607,"name":"Lost"}]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("key", srv.URL)
	raw, err := c.SearchTV(context.Background(), "lost", 0)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Lost")
}

func TestGetTrending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trending/movie/week", r.URL.Path)
		w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix","media_type":"movie"}]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("key", srv.URL)
	raw, err := c.GetTrending(context.Background(), "movie")
	require.NoError(t, err)
	require.Contains(t, string(raw), "The Matrix")
}

func TestGetTrendingDefaultsToAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trending/all/week", r.URL.Path)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("key", srv.URL)
	_, err := c.GetTrending(context.Background(), "")
	require.NoError(t, err)
}

func TestSeasonEpisodeCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tv/1399/season/1", r.URL.Path)
		w.Write([]byte(`{"episodes":[{},{},{}]}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("key", srv.URL)
	n, err := c.SeasonEpisodeCount(context.Background(), 1399, 1)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
