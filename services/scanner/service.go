package scanner

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"hometheater/config"
	"hometheater/models"
	"hometheater/services/catalog"
	"hometheater/services/enrich"
)

// ErrScanInProgress is returned when a scan is requested while one is running.
var ErrScanInProgress = errors.New("scan already in progress")

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
}

// Service walks the configured library roots and reconciles what it finds
// against the catalog. Only one scan runs at a time.
type Service struct {
	fs       afero.Fs
	cfg      *config.Manager
	catalog  *catalog.Service
	queue    *enrich.Queue
	scanning atomic.Bool
}

// NewService creates a scanner over the given filesystem. Pass afero.NewOsFs()
// in production.
func NewService(fs afero.Fs, cfg *config.Manager, cat *catalog.Service, queue *enrich.Queue) *Service {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Service{fs: fs, cfg: cfg, catalog: cat, queue: queue}
}

// Scanning reports whether a scan pass is currently running.
func (s *Service) Scanning() bool {
	return s.scanning.Load()
}

// Scan performs one full library pass: both roots are walked, the movie list
// and series map are rebuilt, and entries missing metadata are queued.
func (s *Service) Scan(ctx context.Context) error {
	if !s.scanning.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	defer s.scanning.Store(false)

	settings, err := s.cfg.Load()
	if err != nil {
		return err
	}

	var (
		movies []models.Movie
		series map[string]*models.Series
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		movies = s.scanMovies(ctx, settings.Library.MovieDir)
	})
	wg.Go(func() {
		series = s.scanSeries(ctx, settings.Library.SeriesDir)
	})
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	log.Printf("[scanner] pass complete: %d movies, %d series", len(movies), len(series))
	return s.catalog.ApplyScan(movies, series)
}

// scanMovies walks the movie root, reusing catalog entries matched by path or,
// failing that, by base filename (the file moved but kept its name).
func (s *Service) scanMovies(ctx context.Context, root string) []models.Movie {
	movies := make([]models.Movie, 0)
	if strings.TrimSpace(root) == "" {
		return movies
	}
	if _, err := s.fs.Stat(root); err != nil {
		log.Printf("[scanner] movie root unavailable: %v", err)
		return movies
	}

	byPath, byName := s.catalog.MovieIndex()

	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("[scanner] skipping %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		name := filepath.Base(path)
		if HasEpisodeTag(name) {
			return nil
		}

		// Each prior entry is consumed at most once per pass; a second file
		// sharing a basename gets a fresh entry instead of a duplicate id.
		m, ok := byPath[path]
		if ok {
			delete(byName, name)
		} else if m, ok = byName[name]; ok {
			m.Path = path
			delete(byName, name)
		}

		if !ok {
			candidates, year := ParseTitle(path)
			m = models.Movie{
				ID:         s.catalog.NextID(),
				Title:      candidates[0],
				Candidates: candidates,
				Year:       year,
				Path:       path,
			}
		}

		if m.Rating == "" {
			s.enqueueMovie(m)
		}
		movies = append(movies, m)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[scanner] movie walk aborted: %v", err)
	}
	return movies
}

// scanSeries walks the series root and rebuilds the series map. Episode ids
// are reused when the same path was seen before so links stay stable across
// rescans. Duplicate (season, episode) pairs keep the last file seen.
func (s *Service) scanSeries(ctx context.Context, root string) map[string]*models.Series {
	series := make(map[string]*models.Series)
	if strings.TrimSpace(root) == "" {
		return series
	}
	if _, err := s.fs.Stat(root); err != nil {
		log.Printf("[scanner] series root unavailable: %v", err)
		return series
	}

	prior := s.catalog.SeriesIndex()
	priorEpisodeIDs := make(map[string]int)
	for _, sr := range prior {
		for _, eps := range sr.Seasons {
			for _, ep := range eps {
				priorEpisodeIDs[ep.Path] = ep.ID
			}
		}
	}

	// name -> season -> episode number -> episode
	grouped := make(map[string]map[int]map[int]models.Episode)

	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("[scanner] skipping %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		name := filepath.Base(path)
		season, episode, ok := ParseEpisode(name)
		if !ok {
			return nil
		}

		candidates, _ := ParseTitle(path)
		sname := SeriesName(candidates[0])
		if sname == "" {
			return nil
		}

		id, seen := priorEpisodeIDs[path]
		if !seen {
			id = s.catalog.NextID()
		}
		ep := models.Episode{
			ID:       id,
			Title:    sname,
			Season:   season,
			Episode:  episode,
			Path:     path,
			Filename: name,
		}

		if grouped[sname] == nil {
			grouped[sname] = make(map[int]map[int]models.Episode)
		}
		if grouped[sname][season] == nil {
			grouped[sname][season] = make(map[int]models.Episode)
		}
		grouped[sname][season][episode] = ep
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[scanner] series walk aborted: %v", err)
	}

	for sname, seasons := range grouped {
		sr := &models.Series{Seasons: make(map[int][]models.Episode, len(seasons))}
		for season, eps := range seasons {
			flat := make([]models.Episode, 0, len(eps))
			for _, ep := range eps {
				flat = append(flat, ep)
			}
			sort.Slice(flat, func(i, j int) bool { return flat[i].Episode < flat[j].Episode })
			sr.Seasons[season] = flat
		}

		if old, ok := prior[sname]; ok && old.Meta != nil {
			sr.Meta = old.Meta
			if sr.Meta.Rating == "" {
				s.enqueueSeries(sr.Meta)
			}
		} else {
			sr.Meta = &models.SeriesMeta{
				Name:       sname,
				Title:      sname,
				Candidates: []string{sname},
			}
			s.enqueueSeries(sr.Meta)
		}
		sr.ApplySummary()
		series[sname] = sr
	}
	return series
}

func (s *Service) enqueueMovie(m models.Movie) {
	candidates := m.Candidates
	if len(candidates) == 0 {
		// Snapshots written before candidates were stored.
		candidates, _ = ParseTitle(m.Path)
	}
	s.queue.Enqueue(enrich.Target{
		Kind:       enrich.TargetMovie,
		MovieID:    m.ID,
		Candidates: candidates,
		Year:       m.Year,
	})
}

func (s *Service) enqueueSeries(meta *models.SeriesMeta) {
	candidates := meta.Candidates
	if len(candidates) == 0 {
		candidates = []string{meta.Name}
	}
	s.queue.Enqueue(enrich.Target{
		Kind:       enrich.TargetSeries,
		SeriesName: meta.Name,
		Candidates: candidates,
		Year:       meta.Year,
	})
}
