// Command plexsync is an out-of-scope operator helper, not part of the
// broker service: it walks a Plex server's movie/show libraries and POSTs
// their TMDB/TVDB ids to arrbridge's /sync/library endpoint, so requests
// get marked fulfilled and search results show "in library" for content
// that was already present before arrbridge started watching webhooks.
// Grounded on original_source/scripts/plex-sync.py (CLI flags, batching,
// clear-on-first-batch) and the teacher's internal/media/plex/library_items.go
// (Plex's XML container shape and X-Plex-Container-Start/Size pagination).
package main

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	plexTypeMovie   = "1"
	plexTypeShow    = "2"
	itemBatchSize   = 200
	syncBatchSize   = 100
	maxResponseBody = 50 << 20
)

type librarySectionsContainer struct {
	Directories []librarySectionXML `xml:"Directory"`
}

type librarySectionXML struct {
	Key  string `xml:"key,attr"`
	Type string `xml:"type,attr"`
}

type libraryItemsContainer struct {
	TotalSize int              `xml:"totalSize,attr"`
	Videos    []libraryItemXML `xml:"Video"`
}

type libraryItemXML struct {
	Title string     `xml:"title,attr"`
	Guids []plexGuid `xml:"Guid"`
}

type plexGuid struct {
	ID string `xml:"id,attr"`
}

type syncItem struct {
	TMDBID int    `json:"tmdb_id"`
	TVDBID int    `json:"tvdb_id,omitempty"`
	Title  string `json:"title"`
}

type syncResult struct {
	SyncedCount int `json:"synced"`
	MarkedCount int `json:"marked_as_added"`
}

func main() {
	plexURL := flag.String("plex-url", envOr("PLEX_URL", "http://localhost:32400"), "Plex server URL")
	plexToken := flag.String("plex-token", os.Getenv("PLEX_TOKEN"), "Plex authentication token")
	arrbridgeURL := flag.String("arrbridge-url", os.Getenv("ARRBRIDGE_URL"), "arrbridge base URL")
	syncToken := flag.String("sync-token", os.Getenv("ARRBRIDGE_SYNC_TOKEN"), "arrbridge PLEX_WEBHOOK_TOKEN")
	moviesOnly := flag.Bool("movies-only", false, "only sync movies")
	tvOnly := flag.Bool("tv-only", false, "only sync TV shows")
	dryRun := flag.Bool("dry-run", false, "print what would be synced without syncing")
	verbose := flag.Bool("v", false, "verbose progress output")
	flag.Parse()

	if *plexToken == "" || *arrbridgeURL == "" || *syncToken == "" {
		log.Fatal("plexsync: --plex-token, --arrbridge-url and --sync-token (or their env vars) are required")
	}
	if *moviesOnly && *tvOnly {
		log.Fatal("plexsync: cannot set both -movies-only and -tv-only")
	}

	client := &http.Client{Timeout: 30 * time.Second}

	if !*tvOnly {
		items, err := fetchLibraryItems(client, *plexURL, *plexToken, plexTypeMovie, *verbose)
		if err != nil {
			log.Fatalf("plexsync: scanning movie libraries: %v", err)
		}
		log.Printf("found %d movies with a TMDB id", len(items))
		if err := maybeSync(client, *arrbridgeURL, *syncToken, "movie", items, *dryRun, *verbose); err != nil {
			log.Printf("plexsync: syncing movies: %v", err)
		}
	}

	if !*moviesOnly {
		items, err := fetchLibraryItems(client, *plexURL, *plexToken, plexTypeShow, *verbose)
		if err != nil {
			log.Fatalf("plexsync: scanning show libraries: %v", err)
		}
		log.Printf("found %d shows with a TMDB id", len(items))
		if err := maybeSync(client, *arrbridgeURL, *syncToken, "tv", items, *dryRun, *verbose); err != nil {
			log.Printf("plexsync: syncing shows: %v", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fetchLibraryItems(client *http.Client, plexURL, token, typeFilter string, verbose bool) ([]syncItem, error) {
	sections, err := fetchSections(client, plexURL, token)
	if err != nil {
		return nil, err
	}

	var items []syncItem
	for _, section := range sections {
		wantType := "movie"
		if typeFilter == plexTypeShow {
			wantType = "show"
		}
		if section.Type != wantType {
			continue
		}
		if verbose {
			log.Printf("  scanning library section %s", section.Key)
		}
		secItems, err := fetchSectionItems(client, plexURL, token, section.Key, typeFilter)
		if err != nil {
			return nil, err
		}
		items = append(items, secItems...)
	}
	return items, nil
}

func fetchSections(client *http.Client, plexURL, token string) ([]librarySectionXML, error) {
	body, err := plexGet(client, plexURL, token, "/library/sections", nil)
	if err != nil {
		return nil, err
	}
	var container librarySectionsContainer
	if err := xml.Unmarshal(body, &container); err != nil {
		return nil, fmt.Errorf("parsing library sections: %w", err)
	}
	return container.Directories, nil
}

func fetchSectionItems(client *http.Client, plexURL, token, sectionKey, typeFilter string) ([]syncItem, error) {
	var items []syncItem
	offset := 0
	for {
		q := url.Values{}
		q.Set("type", typeFilter)
		q.Set("includeGuids", "1")
		q.Set("X-Plex-Container-Start", strconv.Itoa(offset))
		q.Set("X-Plex-Container-Size", strconv.Itoa(itemBatchSize))

		body, err := plexGet(client, plexURL, token, "/library/sections/"+url.PathEscape(sectionKey)+"/all", q)
		if err != nil {
			return nil, err
		}
		var container libraryItemsContainer
		if err := xml.Unmarshal(body, &container); err != nil {
			return nil, fmt.Errorf("parsing library items: %w", err)
		}
		if len(container.Videos) == 0 {
			break
		}
		for _, v := range container.Videos {
			tmdbID, tvdbID := parseGuids(v.Guids)
			if tmdbID == 0 {
				continue
			}
			items = append(items, syncItem{TMDBID: tmdbID, TVDBID: tvdbID, Title: v.Title})
		}
		offset += len(container.Videos)
		if len(container.Videos) < itemBatchSize {
			break
		}
	}
	return items, nil
}

func parseGuids(guids []plexGuid) (tmdbID, tvdbID int) {
	for _, g := range guids {
		scheme, value, ok := strings.Cut(g.ID, "://")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch scheme {
		case "tmdb":
			tmdbID = n
		case "tvdb":
			tvdbID = n
		}
	}
	return tmdbID, tvdbID
}

func plexGet(client *http.Client, plexURL, token, path string, query url.Values) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(plexURL, "/") + path)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Plex-Token", token)
	req.Header.Set("Accept", "application/xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plex returned status %d for %s", resp.StatusCode, path)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
}

// maybeSync batches items and POSTs them to /sync/library, clearing the
// existing partition only on the first batch, matching plex-sync.py.
func maybeSync(client *http.Client, arrbridgeURL, syncToken, mediaType string, items []syncItem, dryRun, verbose bool) error {
	if dryRun {
		log.Printf("(dry run) would sync %d %s items", len(items), mediaType)
		if verbose {
			for i, item := range items {
				if i >= 5 {
					break
				}
				log.Printf("  - %s (tmdb=%d tvdb=%d)", item.Title, item.TMDBID, item.TVDBID)
			}
		}
		return nil
	}

	var totalSynced, totalMarked int
	for i := 0; i < len(items); i += syncBatchSize {
		end := i + syncBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]

		q := url.Values{}
		q.Set("media_type", mediaType)
		q.Set("token", syncToken)
		if i == 0 {
			q.Set("clear", "true")
		}

		body, err := json.Marshal(batch)
		if err != nil {
			return err
		}
		u := strings.TrimRight(arrbridgeURL, "/") + "/sync/library?" + q.Encode()
		req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sync batch %d/%d returned status %d", i/syncBatchSize+1, (len(items)+syncBatchSize-1)/syncBatchSize, resp.StatusCode)
		}

		var result syncResult
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing sync response: %w", err)
		}
		totalSynced += result.SyncedCount
		totalMarked += result.MarkedCount
		if verbose {
			log.Printf("  batch %d/%d: synced %d, marked %d", i/syncBatchSize+1, (len(items)+syncBatchSize-1)/syncBatchSize, result.SyncedCount, result.MarkedCount)
		}
	}

	log.Printf("synced %d %s items, marked %d requests fulfilled", totalSynced, mediaType, totalMarked)
	return nil
}
