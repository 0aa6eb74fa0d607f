// Package tmdb is a thin JSON client over the TMDB v3 API: search,
// movie/tv details, and a tv season's episode count. Adapted from the
// teacher's internal/tmdb/client.go with its Storage-backed response
// cache dropped — caching metadata beyond the request record is an
// explicit non-goal.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"arrbridge/internal/httputil"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    httputil.NewClientWithTimeout(httputil.DefaultTimeout),
		limiter: rate.NewLimiter(35, 10),
	}
}

func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = baseURL
	c.limiter = rate.NewLimiter(rate.Inf, 0)
	return c
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tmdb: rate limit: %w", err)
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	u := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("tmdb: creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb: connection failed: %w", err)
	}
	defer httputil.DrainBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("tmdb: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tmdb: returned status %d: %s", resp.StatusCode, httputil.Truncate(body, 200))
	}
	return json.RawMessage(body), nil
}

// Search proxies TMDB's multi-search (movies + tv combined).
func (c *Client) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("query", query)
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.do(ctx, "/search/multi", params)
}

// SearchMovie proxies TMDB's movie-only search, used when the caller
// names media_type="movie" explicitly.
func (c *Client) SearchMovie(ctx context.Context, query string, page int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("query", query)
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.do(ctx, "/search/movie", params)
}

// SearchTV proxies TMDB's tv-only search, used when the caller names
// media_type="tv" explicitly.
func (c *Client) SearchTV(ctx context.Context, query string, page int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("query", query)
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	return c.do(ctx, "/search/tv", params)
}

// GetTrending proxies TMDB's trending/<media_type>/week feed, used by
// GET /api/trending. mediaType is "movie", "tv", or "all".
func (c *Client) GetTrending(ctx context.Context, mediaType string) (json.RawMessage, error) {
	if mediaType == "" {
		mediaType = "all"
	}
	return c.do(ctx, fmt.Sprintf("/trending/%s/week", mediaType), nil)
}

// detailParams requests external_ids appended to the base details payload
// — TMDB only includes imdb_id/tvdb_id when asked, and /api/request needs
// both to populate Request.IMDBID/TVDBID.
func detailParams() url.Values {
	v := url.Values{}
	v.Set("append_to_response", "external_ids")
	return v
}

func (c *Client) GetMovie(ctx context.Context, id int) (json.RawMessage, error) {
	return c.do(ctx, fmt.Sprintf("/movie/%d", id), detailParams())
}

func (c *Client) GetTV(ctx context.Context, id int) (json.RawMessage, error) {
	return c.do(ctx, fmt.Sprintf("/tv/%d", id), detailParams())
}

// SeasonEpisodeCount fetches one season's details and returns the number
// of entries in its episodes array. The /api/search number_of_seasons
// enrichment does not use it; that reads GetTV's details instead.
func (c *Client) SeasonEpisodeCount(ctx context.Context, tvID, seasonNumber int) (int, error) {
	raw, err := c.do(ctx, fmt.Sprintf("/tv/%d/season/%d", tvID, seasonNumber), nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Episodes []json.RawMessage `json:"episodes"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, err
	}
	return len(out.Episodes), nil
}

func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.do(ctx, "/configuration", nil)
	return err
}
