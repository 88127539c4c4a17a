package subtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	openSubtitlesBase = "https://api.opensubtitles.com/api/v1"
	userAgent         = "HomeTheater/1.0"

	// maxSubtitleBytes caps a single subtitle download.
	maxSubtitleBytes = 5 << 20
)

// ErrAPIKeyRequired indicates no OpenSubtitles key is configured.
var ErrAPIKeyRequired = errors.New("opensubtitles api key not configured")

// SearchResult is one downloadable subtitle option, already filtered by
// language and labelled by how it was found.
type SearchResult struct {
	FileID        int    `json:"file_id"`
	Title         string `json:"title"`
	DownloadCount int    `json:"dl_count"`
}

// OpenSubtitlesClient is a thin client for the OpenSubtitles REST API.
type OpenSubtitlesClient struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
	cache   *gocache.Cache

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewOpenSubtitlesClient builds a client. An empty apiKey produces a client
// whose calls fail with ErrAPIKeyRequired.
func NewOpenSubtitlesClient(apiKey string, httpc *http.Client) *OpenSubtitlesClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &OpenSubtitlesClient{
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     openSubtitlesBase,
		httpc:       httpc,
		cache:       gocache.New(15*time.Minute, 10*time.Minute),
		minInterval: 250 * time.Millisecond,
	}
}

// Configured reports whether an API key is present.
func (c *OpenSubtitlesClient) Configured() bool {
	return c.apiKey != ""
}

// Search looks up subtitles by file hash first, then by name while fewer than
// five results are in hand. Results are deduplicated by file id and sorted by
// download count, most popular first.
func (c *OpenSubtitlesClient) Search(ctx context.Context, hash, title, year string, languages []string) ([]SearchResult, error) {
	if !c.Configured() {
		return nil, ErrAPIKeyRequired
	}

	cacheKey := strings.Join([]string{hash, title, year, strings.Join(languages, ",")}, "|")
	if v, ok := c.cache.Get(cacheKey); ok {
		if cached, ok := v.([]SearchResult); ok {
			out := make([]SearchResult, len(cached))
			copy(out, cached)
			return out, nil
		}
	}

	allowed := make(map[string]bool, len(languages))
	for _, lang := range languages {
		allowed[strings.ToLower(lang)] = true
	}

	results := make([]SearchResult, 0)
	seen := make(map[int]bool)

	if hash != "" {
		found, err := c.search(ctx, url.Values{"moviehash": {hash}})
		if err != nil {
			log.Printf("[subtitles] hash search: %v", err)
		}
		for _, item := range found {
			if r, ok := item.toResult("[HASH]", allowed); ok && !seen[r.FileID] {
				seen[r.FileID] = true
				results = append(results, r)
			}
		}
	}

	if len(results) < 5 && strings.TrimSpace(title) != "" {
		query := title
		if year != "" {
			query += " " + year
		}
		found, err := c.search(ctx, url.Values{"query": {query}})
		if err != nil {
			log.Printf("[subtitles] name search: %v", err)
		}
		for _, item := range found {
			if r, ok := item.toResult("[NAME]", allowed); ok && !seen[r.FileID] {
				seen[r.FileID] = true
				results = append(results, r)
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DownloadCount > results[j].DownloadCount
	})

	c.cache.Set(cacheKey, results, gocache.DefaultExpiration)
	return results, nil
}

// Download fetches a subtitle by file id and returns its raw bytes.
func (c *OpenSubtitlesClient) Download(ctx context.Context, fileID int) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrAPIKeyRequired
	}

	payload, err := json.Marshal(map[string]int{"file_id": fileID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/download", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	c.throttle()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request download link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download link: status %d", resp.StatusCode)
	}

	var body struct {
		Link string `json:"link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode download link: %w", err)
	}
	if body.Link == "" {
		return nil, errors.New("download response carried no link")
	}

	linkReq, err := http.NewRequestWithContext(ctx, http.MethodGet, body.Link, nil)
	if err != nil {
		return nil, err
	}
	linkResp, err := c.httpc.Do(linkReq)
	if err != nil {
		return nil, fmt.Errorf("fetch subtitle: %w", err)
	}
	defer linkResp.Body.Close()

	if linkResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch subtitle: status %d", linkResp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(linkResp.Body, maxSubtitleBytes))
}

type osSubtitle struct {
	Attributes struct {
		Language      string `json:"language"`
		Release       string `json:"release"`
		DownloadCount int    `json:"download_count"`
		Files         []struct {
			FileID int `json:"file_id"`
		} `json:"files"`
	} `json:"attributes"`
}

func (s osSubtitle) toResult(tag string, allowed map[string]bool) (SearchResult, bool) {
	attr := s.Attributes
	if len(attr.Files) == 0 || !allowed[strings.ToLower(attr.Language)] {
		return SearchResult{}, false
	}
	return SearchResult{
		FileID:        attr.Files[0].FileID,
		Title:         fmt.Sprintf("%s %s - %s", tag, attr.Language, attr.Release),
		DownloadCount: attr.DownloadCount,
	}, true
}

func (c *OpenSubtitlesClient) search(ctx context.Context, params url.Values) ([]osSubtitle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/subtitles?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	c.throttle()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subtitle search: status %d", resp.StatusCode)
	}

	var body struct {
		Data []osSubtitle `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode subtitle search: %w", err)
	}
	return body.Data, nil
}

func (c *OpenSubtitlesClient) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

func (c *OpenSubtitlesClient) throttle() {
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()
	if wait := c.minInterval - time.Since(c.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}
