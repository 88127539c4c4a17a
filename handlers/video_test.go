package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hometheater/config"
	"hometheater/models"
)

type fakeCatalog map[int]models.Entry

func (f fakeCatalog) Resolve(id int) (models.Entry, bool) {
	entry, ok := f[id]
	return entry, ok
}

func newVideoFixture(t *testing.T) (*mux.Router, []byte) {
	t.Helper()

	// Each byte depends on its offset so a bad seek shows up as a content
	// mismatch, not just a length mismatch.
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 251)
	}

	movieDir := t.TempDir()
	videoPath := filepath.Join(movieDir, "Heat.mkv")
	require.NoError(t, os.WriteFile(videoPath, content, 0o644))

	settings := config.DefaultSettings()
	settings.Library.MovieDir = movieDir
	settings.Transcode.Enabled = false
	cfg := config.NewManager(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, cfg.Save(settings))

	outside := filepath.Join(t.TempDir(), "escape.mkv")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	catalog := fakeCatalog{
		1: {Kind: models.EntryMovie, Movie: &models.Movie{ID: 1, Title: "Heat", Path: videoPath}},
		2: {Kind: models.EntryMovie, Movie: &models.Movie{ID: 2, Title: "Escape", Path: outside}},
		3: {Kind: models.EntryMovie, Movie: &models.Movie{ID: 3, Title: "Gone", Path: filepath.Join(movieDir, "gone.mkv")}},
	}

	handler := NewVideoHandler(catalog, cfg)
	r := mux.NewRouter()
	r.HandleFunc("/video/{id}", handler.StreamVideo).Methods(http.MethodGet, http.MethodHead)
	return r, content
}

func TestStreamVideoFull(t *testing.T) {
	router, content := newVideoFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Empty(t, rec.Header().Get("Content-Range"))
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestStreamVideoRange(t *testing.T) {
	router, content := newVideoFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/video/1", nil)
	req.Header.Set("Range", "bytes=100-199")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 100-199/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, content[100:200], rec.Body.Bytes())
}

func TestStreamVideoOpenEndedRange(t *testing.T) {
	router, content := newVideoFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/video/1", nil)
	req.Header.Set("Range", "bytes=900-")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 900-999/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, content[900:], rec.Body.Bytes())
}

func TestStreamVideoRangeClampsEnd(t *testing.T) {
	router, content := newVideoFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/video/1", nil)
	req.Header.Set("Range", "bytes=950-5000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 950-999/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, content[950:], rec.Body.Bytes())
}

func TestStreamVideoUnparseableRangeServesFull(t *testing.T) {
	router, content := newVideoFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/video/1", nil)
	req.Header.Set("Range", "bytes=-500")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Range"))
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestStreamVideoRangePastEnd(t *testing.T) {
	router, _ := newVideoFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/video/1", nil)
	req.Header.Set("Range", "bytes=1000-")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
}

func TestStreamVideoHead(t *testing.T) {
	router, _ := newVideoFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/video/1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestStreamVideoUnknownID(t *testing.T) {
	router, _ := newVideoFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamVideoOutsideLibraryForbidden(t *testing.T) {
	router, _ := newVideoFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/2", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStreamVideoMissingFile(t *testing.T) {
	router, _ := newVideoFixture(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video/3", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
