// internal/ingest/handler.go
package ingest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/replenlabs/supplyengine/internal/domain"
	"github.com/replenlabs/supplyengine/internal/store"
)

// Handler accepts sales observations and supplier delivery metrics from
// upstream systems (POS exports, EDI bridges) and appends them to the store.
// It runs as a sidecar so bulk feeds never contend with the engine API.
type Handler struct {
	catalog *store.Catalog
}

func NewHandler(catalog *store.Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ingest/sales", h.IngestSales).Methods("POST")
	r.HandleFunc("/ingest/suppliers", h.IngestSupplier).Methods("POST")
	r.HandleFunc("/ingest/supplier-metrics", h.IngestSupplierMetrics).Methods("POST")
}

// IngestSales appends a batch of sales history entries.
func (h *Handler) IngestSales(w http.ResponseWriter, r *http.Request) {
	var entries []domain.SalesHistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted := 0
	for i := range entries {
		if entries[i].SKU == "" || entries[i].Date.IsZero() {
			continue
		}
		if err := h.catalog.AppendSales(r.Context(), &entries[i]); err != nil {
			log.Error().Err(err).Str("sku", entries[i].SKU).Msg("failed to append sales entry")
			writeError(w, http.StatusInternalServerError, "failed to store sales entries")
			return
		}
		accepted++
	}

	writeJSON(w, http.StatusAccepted, map[string]int{
		"accepted": accepted,
		"skipped":  len(entries) - accepted,
	})
}

// IngestSupplier creates or replaces a supplier record.
func (h *Handler) IngestSupplier(w http.ResponseWriter, r *http.Request) {
	var sup domain.Supplier
	if err := json.NewDecoder(r.Body).Decode(&sup); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if sup.SupplierID == "" {
		writeError(w, http.StatusBadRequest, "supplier_id is required")
		return
	}
	if err := h.catalog.UpsertSupplier(r.Context(), &sup); err != nil {
		log.Error().Err(err).Str("supplier_id", sup.SupplierID).Msg("failed to upsert supplier")
		writeError(w, http.StatusInternalServerError, "failed to store supplier")
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

// IngestSupplierMetrics records recent delivery performance per supplier.
func (h *Handler) IngestSupplierMetrics(w http.ResponseWriter, r *http.Request) {
	var metrics []domain.SupplierMetric
	if err := json.NewDecoder(r.Body).Decode(&metrics); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range metrics {
		if metrics[i].SupplierID == "" {
			writeError(w, http.StatusBadRequest, "supplier_id is required")
			return
		}
		if err := h.catalog.PutSupplierMetric(r.Context(), &metrics[i]); err != nil {
			log.Error().Err(err).Str("supplier_id", metrics[i].SupplierID).Msg("failed to store supplier metric")
			writeError(w, http.StatusInternalServerError, "failed to store supplier metrics")
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(metrics)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
