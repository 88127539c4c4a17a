package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"hometheater/models"
	"hometheater/services/catalog"
	"hometheater/services/enrich"
	"hometheater/services/scanner"
)

// CatalogHandler exposes the library listing and the rescan trigger.
type CatalogHandler struct {
	catalog *catalog.Service
	scanner *scanner.Service
	queue   *enrich.Queue

	// baseCtx bounds triggered scans to the application lifetime, so shutdown
	// also stops a scan started over the API.
	baseCtx context.Context
}

func NewCatalogHandler(baseCtx context.Context, cat *catalog.Service, sc *scanner.Service, queue *enrich.Queue) *CatalogHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &CatalogHandler{catalog: cat, scanner: sc, queue: queue, baseCtx: baseCtx}
}

// DataResponse is the full library payload the frontend renders from.
type DataResponse struct {
	Movies   []models.Movie            `json:"movies"`
	Series   map[string]*models.Series `json:"series"`
	Scanning bool                      `json:"scanning"`
	Queue    int                       `json:"queue"`
}

// GetData handles GET /api/data.
func (h *CatalogHandler) GetData(w http.ResponseWriter, r *http.Request) {
	series := h.catalog.Series()
	for _, sr := range series {
		sr.ApplySummary()
	}

	writeJSON(w, DataResponse{
		Movies:   h.catalog.Movies(),
		Series:   series,
		Scanning: h.scanner.Scanning(),
		Queue:    h.queue.Len(),
	})
}

// TriggerScan handles POST /api/scan. A scan already in flight is left alone.
func (h *CatalogHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.scanner.Scan(h.baseCtx); err != nil && !errors.Is(err, scanner.ErrScanInProgress) {
			log.Printf("[scanner] scan failed: %v", err)
		}
	}()
	writeJSON(w, map[string]string{"status": "started"})
}
