// Package tvdb implements the episode->series reverse lookup against TVDB
// v4, following the bearer-token lifecycle in the teacher's Plex token
// handling (internal/auth/plex.go) and the doGet/httputil conventions of
// internal/overseerr/client.go.
package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"arrbridge/internal/httputil"
)

const (
	defaultBaseURL = "https://api4.thetvdb.com/v4"
	tokenLifetime  = 29 * 24 * time.Hour
)

// Client performs the single TVDB operation reconciliation needs:
// resolving an episode's TVDB id to its series' TVDB id.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    httputil.NewClientWithTimeout(httputil.DefaultTimeout),
	}
}

func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = baseURL
	return c
}

type loginResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"apikey": c.apiKey})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tvdb: login: %w", err)
	}
	defer httputil.DrainBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tvdb: login returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return err
	}
	var lr loginResponse
	if err := json.Unmarshal(respBody, &lr); err != nil {
		return fmt.Errorf("tvdb: decoding login response: %w", err)
	}

	c.token = lr.Data.Token
	c.tokenExpiry = time.Now().Add(tokenLifetime)
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}
	return c.login(ctx)
}

type episodeResponse struct {
	Data struct {
		SeriesID int `json:"seriesId"`
	} `json:"data"`
}

// SeriesIDForEpisode resolves episodeTVDBID's parent series id. Returns
// (0, nil) on a 404 or when no API key is configured — reconciliation
// treats this as "strategy did not resolve," never an error.
func (c *Client) SeriesIDForEpisode(ctx context.Context, episodeTVDBID int) (int, error) {
	if c.apiKey == "" || episodeTVDBID == 0 {
		return 0, nil
	}
	if err := c.ensureToken(ctx); err != nil {
		log.Printf("tvdb: login failed: %v", err)
		return 0, nil
	}

	url := c.baseURL + "/episodes/" + strconv.Itoa(episodeTVDBID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil
	}
	c.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("tvdb: episode lookup failed: %v", err)
		return 0, nil
	}
	defer httputil.DrainBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("tvdb: episode lookup returned status %d", resp.StatusCode)
		return 0, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return 0, nil
	}
	var er episodeResponse
	if err := json.Unmarshal(body, &er); err != nil {
		log.Printf("tvdb: decoding episode response: %v", err)
		return 0, nil
	}
	return er.Data.SeriesID, nil
}
