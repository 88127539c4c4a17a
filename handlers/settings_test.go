package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hometheater/config"
)

func newSettingsFixture(t *testing.T) (*SettingsHandler, *config.Manager) {
	t.Helper()

	cfg := config.NewManager(filepath.Join(t.TempDir(), "settings.json"))
	settings := config.DefaultSettings()
	settings.Library.MovieDir = "/movies"
	settings.Metadata.OMDbAPIKey = "old-key"
	require.NoError(t, cfg.Save(settings))

	return NewSettingsHandler(cfg), cfg
}

func TestGetSettings(t *testing.T) {
	handler, _ := newSettingsFixture(t)

	rec := httptest.NewRecorder()
	handler.GetSettings(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"movieDir":"/movies"`)
}

func TestUpdateSettingsPartialMerge(t *testing.T) {
	handler, cfg := newSettingsFixture(t)

	body := `{"metadata":{"omdbApiKey":"new-key"}}`
	rec := httptest.NewRecorder()
	handler.UpdateSettings(rec, httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := cfg.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-key", saved.Metadata.OMDbAPIKey)
	// Untouched sections survive a partial update.
	assert.Equal(t, "/movies", saved.Library.MovieDir)
	assert.Equal(t, 7777, saved.Server.Port)
}

func TestUpdateSettingsRejectsBadJSON(t *testing.T) {
	handler, cfg := newSettingsFixture(t)

	rec := httptest.NewRecorder()
	handler.UpdateSettings(rec, httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader("{nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	saved, err := cfg.Load()
	require.NoError(t, err)
	assert.Equal(t, "old-key", saved.Metadata.OMDbAPIKey)
}
