package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"hometheater/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrNotFound           = errors.New("catalog entry not found")
)

// Service owns the in-memory library and its JSON snapshot on disk.
// All mutation happens under one lock so scanner, enricher and handlers
// never observe a half-applied pass.
type Service struct {
	mu     sync.RWMutex
	path   string
	movies []models.Movie
	series map[string]*models.Series

	// nextID is shared by movies and episodes so playable ids never collide.
	nextID int
}

// NewService creates a catalog service storing its snapshot inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	svc := &Service{
		path:   filepath.Join(storageDir, "library.json"),
		series: make(map[string]*models.Series),
	}

	if err := svc.load(); err != nil {
		return nil, err
	}

	return svc, nil
}

// Movies returns a copy of all movies sorted by id.
func (s *Service) Movies() []models.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Movie, len(s.movies))
	copy(out, s.movies)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Series returns a deep copy of the series map keyed by cleaned name.
func (s *Service) Series() map[string]*models.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.Series, len(s.series))
	for name, sr := range s.series {
		out[name] = copySeries(sr)
	}
	return out
}

// MovieIndex returns lookup maps used by the scanner to reconcile entries:
// one keyed by absolute path, one keyed by base filename.
func (s *Service) MovieIndex() (byPath map[string]models.Movie, byName map[string]models.Movie) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPath = make(map[string]models.Movie, len(s.movies))
	byName = make(map[string]models.Movie, len(s.movies))
	for _, m := range s.movies {
		byPath[m.Path] = m
		byName[filepath.Base(m.Path)] = m
	}
	return byPath, byName
}

// SeriesIndex returns copies of the current series entries for meta carry-over.
func (s *Service) SeriesIndex() map[string]*models.Series {
	return s.Series()
}

// NextID hands out a fresh playable id. Movies and episodes draw from the
// same sequence and ids are never reused.
func (s *Service) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

// ApplyScan replaces the whole library with the results of a scan pass and persists.
func (s *Service) ApplyScan(movies []models.Movie, series map[string]*models.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.movies = movies
	if series == nil {
		series = make(map[string]*models.Series)
	}
	s.series = series
	s.bumpCounterLocked()

	return s.saveLocked()
}

// Resolve maps a playable id to its movie or episode. Ids come from one
// shared sequence, so at most one entry can match.
func (s *Service) Resolve(id int) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.movies {
		if s.movies[i].ID == id {
			m := s.movies[i]
			return models.Entry{Kind: models.EntryMovie, Movie: &m}, true
		}
	}
	for name, sr := range s.series {
		for _, eps := range sr.Seasons {
			for _, ep := range eps {
				if ep.ID == id {
					e := ep
					return models.Entry{Kind: models.EntryEpisode, Episode: &e, SeriesName: name}, true
				}
			}
		}
	}
	return models.Entry{}, false
}

// SeriesByName returns a deep copy of one series.
func (s *Service) SeriesByName(name string) (*models.Series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[name]
	if !ok {
		return nil, false
	}
	return copySeries(sr), true
}

// UpdateMovie applies fn to the movie with the given id under the catalog lock
// and persists the snapshot.
func (s *Service) UpdateMovie(id int, fn func(*models.Movie)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.movies {
		if s.movies[i].ID == id {
			fn(&s.movies[i])
			return s.saveLocked()
		}
	}
	return ErrNotFound
}

// UpdateSeriesMeta applies fn to the named series' meta under the catalog lock,
// re-propagates the summary fields and persists the snapshot.
func (s *Service) UpdateSeriesMeta(name string, fn func(*models.SeriesMeta)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[name]
	if !ok {
		return ErrNotFound
	}
	if sr.Meta == nil {
		sr.Meta = &models.SeriesMeta{Name: name}
	}
	fn(sr.Meta)
	sr.ApplySummary()
	return s.saveLocked()
}

// Save persists the current snapshot.
func (s *Service) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = 1

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var snap models.CatalogSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	s.movies = snap.Movies
	if snap.Series != nil {
		s.series = snap.Series
	}
	s.bumpCounterLocked()

	return nil
}

// bumpCounterLocked seeds the id counter just past the highest id seen in
// either the movie list or any episode.
func (s *Service) bumpCounterLocked() {
	for _, m := range s.movies {
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
	}
	for _, sr := range s.series {
		for _, eps := range sr.Seasons {
			for _, ep := range eps {
				if ep.ID >= s.nextID {
					s.nextID = ep.ID + 1
				}
			}
		}
	}
}

func (s *Service) saveLocked() error {
	movies := make([]models.Movie, len(s.movies))
	copy(movies, s.movies)
	sort.Slice(movies, func(i, j int) bool { return movies[i].ID < movies[j].ID })

	snap := models.CatalogSnapshot{Movies: movies, Series: s.series}

	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create catalog temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode catalog: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync catalog: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close catalog temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace catalog file: %w", err)
	}

	return nil
}

func copySeries(in *models.Series) *models.Series {
	out := &models.Series{
		Poster:  in.Poster,
		Rating:  in.Rating,
		Plot:    in.Plot,
		Genre:   in.Genre,
		Year:    in.Year,
		Seasons: make(map[int][]models.Episode, len(in.Seasons)),
	}
	for season, eps := range in.Seasons {
		cp := make([]models.Episode, len(eps))
		copy(cp, eps)
		out.Seasons[season] = cp
	}
	if in.Meta != nil {
		meta := *in.Meta
		meta.Candidates = append([]string(nil), in.Meta.Candidates...)
		out.Meta = &meta
	}
	return out
}
