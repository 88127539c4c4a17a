package metadata

import (
	"context"
	"encoding/gob"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Digital-Shane/omdb"
	"github.com/avast/retry-go/v4"
	gocache "github.com/patrickmn/go-cache"
)

func init() {
	gob.Register(Result{})
}

// OMDbService resolves titles against the OMDb API with a disk-persisted
// response cache so repeated scans do not burn through the request quota.
type OMDbService struct {
	client    *omdb.Client
	cache     *gocache.Cache
	cacheFile string

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewOMDbService builds a provider backed by the given API key. The cache file
// lives under cacheDir and is loaded if present.
func NewOMDbService(apiKey string, httpc *http.Client, cacheDir string, ttl time.Duration) *OMDbService {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s := &OMDbService{
		client:      omdb.NewClient(apiKey, httpc),
		cache:       gocache.New(ttl, 10*time.Minute),
		minInterval: 250 * time.Millisecond,
	}
	if strings.TrimSpace(cacheDir) != "" {
		s.cacheFile = filepath.Join(cacheDir, "omdb_cache.gob")
		if err := s.cache.LoadFile(s.cacheFile); err != nil {
			log.Printf("[metadata] omdb cache not loaded: %v", err)
		}
	}
	return s
}

// LookupMovie queries OMDb for a feature film.
func (s *OMDbService) LookupMovie(ctx context.Context, title, year string) (*Result, error) {
	return s.lookup(ctx, "movie", title, year)
}

// LookupSeries queries OMDb for a series.
func (s *OMDbService) LookupSeries(ctx context.Context, title, year string) (*Result, error) {
	return s.lookup(ctx, "series", title, year)
}

func (s *OMDbService) lookup(ctx context.Context, kind, title, year string) (*Result, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrNotFound
	}

	key := kind + ":" + strings.ToLower(title) + ":" + year
	if v, ok := s.cache.Get(key); ok {
		if r, ok := v.(Result); ok {
			out := r
			return &out, nil
		}
	}

	var result *Result
	err := retry.Do(
		func() error {
			s.throttle()
			raw, err := s.client.SearchByTitle(omdb.QueryData{
				Title:      title,
				Year:       year,
				SearchType: kind,
				Plot:       "full",
			})
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "not found") {
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("omdb %s lookup %q: %w", kind, title, err)
			}
			switch r := raw.(type) {
			case omdb.MovieResult:
				result = movieToResult(r)
			case *omdb.MovieResult:
				result = movieToResult(*r)
			case omdb.SeriesResult:
				result = seriesToResult(r)
			case *omdb.SeriesResult:
				result = seriesToResult(*r)
			default:
				return retry.Unrecoverable(ErrNotFound)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, *result, gocache.DefaultExpiration)
	s.persistCache()
	return result, nil
}

// throttle spaces out provider requests.
func (s *OMDbService) throttle() {
	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()
	if wait := s.minInterval - time.Since(s.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	s.lastRequest = time.Now()
}

func (s *OMDbService) persistCache() {
	if s.cacheFile == "" {
		return
	}
	if err := s.cache.SaveFile(s.cacheFile); err != nil {
		log.Printf("[metadata] omdb cache not saved: %v", err)
	}
}

func movieToResult(r omdb.MovieResult) *Result {
	return &Result{
		Title:     norm(r.Title),
		Year:      omdb.FirstYear(r.Year),
		Rating:    norm(r.ImdbRating),
		Plot:      norm(r.Plot),
		Genre:     norm(r.Genre),
		PosterURL: norm(r.Poster),
	}
}

func seriesToResult(r omdb.SeriesResult) *Result {
	return &Result{
		Title:     norm(r.Title),
		Year:      omdb.FirstYear(r.Year),
		Rating:    norm(r.ImdbRating),
		Plot:      norm(r.Plot),
		Genre:     norm(r.Genre),
		PosterURL: norm(r.Poster),
	}
}

// norm maps OMDb's "N/A" placeholder to an empty string.
func norm(s string) string {
	if s == "N/A" {
		return ""
	}
	return s
}
