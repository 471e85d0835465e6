package server

import (
	"net/http"
	"time"

	"github.com/playperu/radioguessr/internal/catalog"
)

type CatalogStats interface {
	Stats() catalog.Stats
}

type CatalogResponse struct {
	Stations    int        `json:"stations"`
	DenseCells  int        `json:"dense_cells"`
	RefreshedAt *time.Time `json:"refreshed_at"`
}

// handleCatalog reports what the catalog currently holds without triggering
// a refresh.
func handleCatalog(cat CatalogStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := cat.Stats()
		resp := CatalogResponse{Stations: st.Stations, DenseCells: st.DenseCells}
		if !st.RefreshedAt.IsZero() {
			at := st.RefreshedAt.UTC()
			resp.RefreshedAt = &at
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
