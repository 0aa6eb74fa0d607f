package tvdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeriesIDForEpisode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": "tok123"}})
		case "/episodes/999999":
			require.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]int{"seriesId": 75897}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewWithBaseURL("key123", srv.URL)
	seriesID, err := c.SeriesIDForEpisode(context.Background(), 999999)
	require.NoError(t, err)
	require.Equal(t, 75897, seriesID)
}

func TestSeriesIDForEpisodeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": "tok123"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewWithBaseURL("key123", srv.URL)
	seriesID, err := c.SeriesIDForEpisode(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, seriesID)
}

func TestSeriesIDForEpisodeNoAPIKey(t *testing.T) {
	c := New("")
	seriesID, err := c.SeriesIDForEpisode(context.Background(), 999999)
	require.NoError(t, err)
	require.Zero(t, seriesID)
}
