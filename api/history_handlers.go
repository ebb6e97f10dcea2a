package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/facturaIA/textscan-service/internal/history"
	"github.com/facturaIA/textscan-service/internal/models"
)

// GetHistory - GET /api/history?page=&limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Parse pagination params
	page := 1
	limit := 20
	if p := r.URL.Query().Get("page"); p != "" {
		if val, err := strconv.Atoi(p); err == nil && val > 0 {
			page = val
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 100 {
			limit = val
		}
	}

	offset := (page - 1) * limit

	entries, total, err := h.deps.History.List(r.Context(), limit, offset)
	if err != nil {
		log.Printf("GetHistory error: %v", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get history")
		return
	}

	if entries == nil {
		entries = []history.Entry{}
	}

	json.NewEncoder(w).Encode(models.HistoryListResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// GetHistoryEntry - GET /api/history/{id}
func (h *Handler) GetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	entry, err := h.deps.History.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		log.Printf("GetHistoryEntry error (id=%s): %v", id, err)
		h.sendError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}

	json.NewEncoder(w).Encode(entry)
}

// DeleteHistoryEntry - DELETE /api/history/{id}
func (h *Handler) DeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	err := h.deps.History.Delete(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		log.Printf("DeleteHistoryEntry error (id=%s): %v", id, err)
		h.sendError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "entry deleted",
	})
}

// GetHistoryStats - GET /api/history/stats
func (h *Handler) GetHistoryStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	stats, err := h.deps.History.Stats(r.Context())
	if err != nil {
		log.Printf("GetHistoryStats error: %v", err)
		h.sendError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}
