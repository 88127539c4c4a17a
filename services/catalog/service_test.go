package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hometheater/models"
)

func seedSnapshot(t *testing.T, svc *Service) {
	t.Helper()

	movies := []models.Movie{
		{ID: 1, Title: "Inception", Year: "2010", Path: "/movies/Inception.mkv", Rating: "8.8"},
		{ID: 4, Title: "Heat", Year: "1995", Path: "/movies/Heat.mkv"},
	}
	series := map[string]*models.Series{
		"Show Name": {
			Seasons: map[int][]models.Episode{
				2: {
					{ID: 7, Title: "Show Name", Season: 2, Episode: 5, Path: "/series/Show.Name.S02E05.mkv", Filename: "Show.Name.S02E05.mkv"},
				},
			},
			Meta: &models.SeriesMeta{Name: "Show Name", Title: "Show Name", Candidates: []string{"Show Name"}},
		},
	}
	require.NoError(t, svc.ApplyScan(movies, series))
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	svc, err := NewService(dir)
	require.NoError(t, err)
	seedSnapshot(t, svc)

	reloaded, err := NewService(dir)
	require.NoError(t, err)

	assert.Equal(t, svc.Movies(), reloaded.Movies())
	assert.Equal(t, svc.Series(), reloaded.Series())
}

func TestIDCounterResumesPastSnapshot(t *testing.T) {
	dir := t.TempDir()

	svc, err := NewService(dir)
	require.NoError(t, err)
	seedSnapshot(t, svc)

	reloaded, err := NewService(dir)
	require.NoError(t, err)

	// Highest stored id across movies (4) and episodes (7) is 7.
	assert.Equal(t, 8, reloaded.NextID())
}

func TestIDsSharedAcrossMoviesAndEpisodes(t *testing.T) {
	svc, err := NewService(t.TempDir())
	require.NoError(t, err)

	first := svc.NextID()
	second := svc.NextID()

	assert.NotEqual(t, first, second)
	assert.Equal(t, first+1, second)
}

func TestResolve(t *testing.T) {
	svc, err := NewService(t.TempDir())
	require.NoError(t, err)
	seedSnapshot(t, svc)

	entry, ok := svc.Resolve(4)
	require.True(t, ok)
	assert.Equal(t, models.EntryMovie, entry.Kind)
	assert.Equal(t, "/movies/Heat.mkv", entry.Path())

	entry, ok = svc.Resolve(7)
	require.True(t, ok)
	assert.Equal(t, models.EntryEpisode, entry.Kind)
	assert.Equal(t, "Show Name", entry.SeriesName)
	assert.Equal(t, "/series/Show.Name.S02E05.mkv", entry.Path())

	_, ok = svc.Resolve(99)
	assert.False(t, ok)
}

func TestUpdateMovie(t *testing.T) {
	dir := t.TempDir()

	svc, err := NewService(dir)
	require.NoError(t, err)
	seedSnapshot(t, svc)

	require.NoError(t, svc.UpdateMovie(4, func(m *models.Movie) {
		m.Rating = "8.3"
		m.Plot = "A crew of thieves."
	}))

	assert.ErrorIs(t, svc.UpdateMovie(99, func(m *models.Movie) {}), ErrNotFound)

	reloaded, err := NewService(dir)
	require.NoError(t, err)
	entry, ok := reloaded.Resolve(4)
	require.True(t, ok)
	assert.Equal(t, "8.3", entry.Movie.Rating)
}

func TestUpdateSeriesMetaPropagatesSummary(t *testing.T) {
	svc, err := NewService(t.TempDir())
	require.NoError(t, err)
	seedSnapshot(t, svc)

	require.NoError(t, svc.UpdateSeriesMeta("Show Name", func(meta *models.SeriesMeta) {
		meta.Rating = "9.1"
		meta.Poster = "/poster/Show_Name"
		meta.Year = "2019"
	}))

	sr, ok := svc.SeriesByName("Show Name")
	require.True(t, ok)
	assert.Equal(t, "9.1", sr.Rating)
	assert.Equal(t, "/poster/Show_Name", sr.Poster)
	assert.Equal(t, "2019", sr.Year)

	assert.ErrorIs(t, svc.UpdateSeriesMeta("Missing", func(meta *models.SeriesMeta) {}), ErrNotFound)
}

func TestMovieIndex(t *testing.T) {
	svc, err := NewService(t.TempDir())
	require.NoError(t, err)
	seedSnapshot(t, svc)

	byPath, byName := svc.MovieIndex()
	assert.Equal(t, "Heat", byPath["/movies/Heat.mkv"].Title)
	assert.Equal(t, "Inception", byName["Inception.mkv"].Title)
}
