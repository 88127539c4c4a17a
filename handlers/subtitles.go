package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"hometheater/config"
	"hometheater/models"
	"hometheater/services/subtitles"
)

// RemoteSubtitleSource returns the current OpenSubtitles client. The client
// reflects the configured API key at the time of the request.
type RemoteSubtitleSource func() *subtitles.OpenSubtitlesClient

// SubtitlesHandler serves local sibling subtitles and proxies OpenSubtitles
// search and download.
type SubtitlesHandler struct {
	catalog CatalogResolver
	cfg     *config.Manager
	local   *subtitles.Service
	remote  RemoteSubtitleSource
}

func NewSubtitlesHandler(catalog CatalogResolver, cfg *config.Manager, local *subtitles.Service, remote RemoteSubtitleSource) *SubtitlesHandler {
	return &SubtitlesHandler{catalog: catalog, cfg: cfg, local: local, remote: remote}
}

// ServeLocal handles GET /subtitle/{id}: the sibling subtitle as WebVTT.
func (h *SubtitlesHandler) ServeLocal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	entry, ok := h.catalog.Resolve(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	vtt, err := h.local.LoadVTT(entry.Path())
	if err != nil {
		if !errors.Is(err, subtitles.ErrNoSubtitle) {
			log.Printf("[subtitles] load for id %d: %v", id, err)
		}
		http.Error(w, "no subtitle", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	_, _ = w.Write([]byte(vtt))
}

// Search handles GET /api/subtitles/search/{id}: hash search first, then name
// search, merged and sorted by popularity.
func (h *SubtitlesHandler) Search(w http.ResponseWriter, r *http.Request) {
	client := h.remote()
	if client == nil || !client.Configured() {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "OpenSubtitles API key not configured"})
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	entry, ok := h.catalog.Resolve(id)
	if !ok {
		writeJSON(w, []subtitles.SearchResult{})
		return
	}

	settings, err := h.cfg.Load()
	if err != nil {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !pathWithinRoots(entry.Path(), settings.Library.MovieDir, settings.Library.SeriesDir) {
		writeJSON(w, []subtitles.SearchResult{})
		return
	}

	hash, err := h.local.FileHash(entry.Path())
	if err != nil {
		log.Printf("[subtitles] hash for id %d: %v", id, err)
		hash = ""
	}

	title, year := searchQuery(entry)
	results, err := client.Search(r.Context(), hash, title, year, settings.Subtitles.Languages)
	if err != nil {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, results)
}

// Download handles POST /api/subtitles/download: fetches the chosen subtitle
// and returns it as WebVTT.
func (h *SubtitlesHandler) Download(w http.ResponseWriter, r *http.Request) {
	client := h.remote()
	if client == nil || !client.Configured() {
		http.Error(w, "API key not configured", http.StatusBadRequest)
		return
	}

	var body struct {
		FileID int `json:"file_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FileID == 0 {
		http.Error(w, "no file ID provided", http.StatusBadRequest)
		return
	}

	data, err := client.Download(r.Context(), body.FileID)
	if err != nil {
		log.Printf("[subtitles] download %d: %v", body.FileID, err)
		http.Error(w, "download failed", http.StatusInternalServerError)
		return
	}

	vtt := subtitles.ToVTT(subtitles.DecodeText(data))
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	_, _ = w.Write([]byte(vtt))
}

// searchQuery builds the name-search query fields for an entry.
func searchQuery(entry models.Entry) (title, year string) {
	switch entry.Kind {
	case models.EntryMovie:
		return entry.Movie.Title, entry.Movie.Year
	case models.EntryEpisode:
		return entry.Episode.Title, ""
	}
	return "", ""
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
