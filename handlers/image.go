package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"hometheater/services/enrich"
)

// PostersHandler serves downloaded poster images from the local store.
type PostersHandler struct {
	store *enrich.PosterStore
}

func NewPostersHandler(store *enrich.PosterStore) *PostersHandler {
	return &PostersHandler{store: store}
}

// ServePoster handles GET /poster/{ref}.
func (h *PostersHandler) ServePoster(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.Resolve(mux.Vars(r)["ref"])
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}
