package models

import "sort"

// Movie is a single video file classified as a feature film.
type Movie struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	Candidates []string `json:"candidates,omitempty"` // alternate titles to try against metadata providers
	Year       string   `json:"year,omitempty"`
	Path       string   `json:"path"`
	Poster     string   `json:"poster,omitempty"` // local poster ref, empty means placeholder
	Rating     string   `json:"rating,omitempty"`
	Plot       string   `json:"plot,omitempty"`
	Genre      string   `json:"genre,omitempty"`
}

// Episode is a single video file belonging to a series season.
type Episode struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Season   int    `json:"season"`
	Episode  int    `json:"episode"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// SeriesMeta carries the enrichment query and results for a whole series.
type SeriesMeta struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Candidates []string `json:"candidates,omitempty"`
	Year       string   `json:"year,omitempty"`
	Poster     string   `json:"poster,omitempty"`
	Rating     string   `json:"rating,omitempty"`
	Plot       string   `json:"plot,omitempty"`
	Genre      string   `json:"genre,omitempty"`
}

// Series groups episodes by season, keyed in the catalog by cleaned name.
// The summary fields mirror Meta so list responses need no extra lookup.
type Series struct {
	Poster  string            `json:"poster,omitempty"`
	Rating  string            `json:"rating,omitempty"`
	Plot    string            `json:"plot,omitempty"`
	Genre   string            `json:"genre,omitempty"`
	Year    string            `json:"year,omitempty"`
	Seasons map[int][]Episode `json:"seasons"`
	Meta    *SeriesMeta       `json:"meta,omitempty"`
}

// SeasonNumbers returns the season keys in ascending order.
func (s *Series) SeasonNumbers() []int {
	nums := make([]int, 0, len(s.Seasons))
	for n := range s.Seasons {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// ApplySummary copies the enriched meta fields onto the series summary.
func (s *Series) ApplySummary() {
	if s.Meta == nil {
		return
	}
	s.Poster = s.Meta.Poster
	s.Rating = s.Meta.Rating
	s.Plot = s.Meta.Plot
	s.Genre = s.Meta.Genre
	s.Year = s.Meta.Year
}

// CatalogSnapshot is the persisted shape of the whole library.
type CatalogSnapshot struct {
	Movies []Movie            `json:"movies"`
	Series map[string]*Series `json:"series"`
}

// EntryKind tags the result of resolving a playable id.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	EntryMovie
	EntryEpisode
)

// Entry is the resolution of a numeric playable id to a concrete file.
type Entry struct {
	Kind    EntryKind
	Movie   *Movie
	Episode *Episode
	// SeriesName is set for episodes so callers can reach series-level data.
	SeriesName string
}

// Path returns the media file path for whichever kind the entry holds.
func (e Entry) Path() string {
	switch e.Kind {
	case EntryMovie:
		return e.Movie.Path
	case EntryEpisode:
		return e.Episode.Path
	}
	return ""
}
