package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"hometheater/models"
	"hometheater/services/catalog"
	"hometheater/services/metadata"
)

// maxPosterBytes caps a single poster download.
const maxPosterBytes = 10 << 20

// ProviderSource returns the current metadata provider, or nil when no API key
// is configured. Targets dequeued while unconfigured are skipped.
type ProviderSource func() metadata.Provider

// Service consumes the enrichment queue, resolves metadata and posters, and
// writes the results back through the catalog.
type Service struct {
	queue     *Queue
	providers ProviderSource
	catalog   *catalog.Service
	posters   *PosterStore
	httpc     *http.Client
	delay     time.Duration
}

// NewService wires the enrichment worker. delay paces provider calls; zero
// means one second.
func NewService(queue *Queue, providers ProviderSource, cat *catalog.Service, posters *PosterStore, httpc *http.Client, delay time.Duration) *Service {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &Service{
		queue:     queue,
		providers: providers,
		catalog:   cat,
		posters:   posters,
		httpc:     httpc,
		delay:     delay,
	}
}

// Run processes targets until ctx is cancelled. Failures are logged and the
// loop moves on; a later rescan re-enqueues anything still unresolved.
func (s *Service) Run(ctx context.Context) {
	log.Printf("[enrich] worker started")
	for {
		t, err := s.queue.Dequeue(ctx)
		if err != nil {
			log.Printf("[enrich] worker stopped: %v", err)
			return
		}

		if s.process(ctx, t) {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// process returns true when a provider call was made, so only real lookups
// consume pacing delay.
func (s *Service) process(ctx context.Context, t Target) bool {
	provider := s.providers()
	if provider == nil {
		return false
	}

	result := s.lookup(ctx, provider, t)
	if result == nil {
		return true
	}

	posterRef := s.fetchPoster(ctx, t, result.PosterURL)

	// Unmatched ratings keep a marker so rescans stop re-enqueueing entries
	// the provider genuinely has no rating for.
	rating := result.Rating
	if rating == "" {
		rating = "N/A"
	}

	var err error
	switch t.Kind {
	case TargetMovie:
		err = s.catalog.UpdateMovie(t.MovieID, func(m *models.Movie) {
			m.Rating = rating
			m.Plot = result.Plot
			m.Genre = result.Genre
			if result.Year != "" {
				m.Year = result.Year
			}
			if posterRef != "" {
				m.Poster = posterRef
			}
		})
	case TargetSeries:
		err = s.catalog.UpdateSeriesMeta(t.SeriesName, func(meta *models.SeriesMeta) {
			meta.Rating = rating
			meta.Plot = result.Plot
			meta.Genre = result.Genre
			if result.Year != "" {
				meta.Year = result.Year
			}
			if posterRef != "" {
				meta.Poster = posterRef
			}
		})
	}
	if err != nil {
		// The entry may have vanished in a rescan between dequeue and apply.
		log.Printf("[enrich] apply %q: %v", t.describe(), err)
	}
	return true
}

// lookup tries each title candidate in order until one resolves.
func (s *Service) lookup(ctx context.Context, provider metadata.Provider, t Target) *metadata.Result {
	for _, candidate := range t.Candidates {
		var (
			result *metadata.Result
			err    error
		)
		switch t.Kind {
		case TargetSeries:
			result, err = provider.LookupSeries(ctx, candidate, t.Year)
		default:
			result, err = provider.LookupMovie(ctx, candidate, t.Year)
		}
		if err == nil {
			return result
		}
		if !errors.Is(err, metadata.ErrNotFound) {
			log.Printf("[enrich] lookup %q: %v", candidate, err)
		}
	}
	return nil
}

// fetchPoster downloads and stores the poster, returning the local ref or ""
// on any failure. The entry keeps its previous poster when the download fails.
func (s *Service) fetchPoster(ctx context.Context, t Target, url string) string {
	if url == "" || s.posters == nil {
		return ""
	}

	key := t.SeriesName
	if t.Kind == TargetMovie {
		key = strconv.Itoa(t.MovieID)
	}

	var data []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := s.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("poster download: status %d", resp.StatusCode)
			}
			data, err = io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes))
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Printf("[enrich] poster %q: %v", t.describe(), err)
		return ""
	}

	ref, err := s.posters.Save(key, data)
	if err != nil {
		log.Printf("[enrich] poster save %q: %v", t.describe(), err)
		return ""
	}
	return ref
}
