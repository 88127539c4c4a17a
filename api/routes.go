package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"hometheater/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts all endpoints onto the provided router.
func Register(
	r *mux.Router,
	catalogHandler *handlers.CatalogHandler,
	settingsHandler *handlers.SettingsHandler,
	videoHandler *handlers.VideoHandler,
	subtitlesHandler *handlers.SubtitlesHandler,
	postersHandler *handlers.PostersHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/data", catalogHandler.GetData).Methods(http.MethodGet)
	api.HandleFunc("/data", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/scan", catalogHandler.TriggerScan).Methods(http.MethodPost)
	api.HandleFunc("/scan", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.UpdateSettings).Methods(http.MethodPost)
	api.HandleFunc("/settings", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/subtitles/search/{id}", subtitlesHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/subtitles/search/{id}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/subtitles/download", subtitlesHandler.Download).Methods(http.MethodPost)
	api.HandleFunc("/subtitles/download", handleOptions).Methods(http.MethodOptions)

	// Media routes stay outside the /api prefix so player URLs remain short.
	r.HandleFunc("/video/{id}", videoHandler.StreamVideo).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/subtitle/{id}", subtitlesHandler.ServeLocal).Methods(http.MethodGet)
	r.HandleFunc("/poster/{ref}", postersHandler.ServePoster).Methods(http.MethodGet)
}
