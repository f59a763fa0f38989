// Package server exposes the rider CRUD surface over the durable rider
// repository. This is collaborator plumbing for callers that need rider
// records; the hub's event path never reads or writes it.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// NewRiderCollectionHandler returns the handler for /riders: GET lists all
// rider records, POST creates or updates one.
func NewRiderCollectionHandler(store RiderStore, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			riders, err := store.All(r.Context())
			if err != nil {
				logger.Warn("listing riders failed", "error", err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, riders)

		case http.MethodPost:
			var req struct {
				ID     string            `json:"id"`
				Fields map[string]string `json:"fields"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
				http.Error(w, "id is required", http.StatusBadRequest)
				return
			}
			if err := store.Save(r.Context(), req.ID, req.Fields); err != nil {
				logger.Warn("saving rider failed", "rider_id", req.ID, "error", err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// NewRiderHandler returns the handler for /riders/{id}: GET fetches one
// record, DELETE removes it.
func NewRiderHandler(store RiderStore, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/riders/")
		if id == "" || strings.Contains(id, "/") {
			http.Error(w, "rider id is required", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			fields, found, err := store.Get(r.Context(), id)
			if err != nil {
				logger.Warn("fetching rider failed", "rider_id", id, "error", err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
			if !found {
				http.Error(w, "rider not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, fields)

		case http.MethodDelete:
			deleted, err := store.Delete(r.Context(), id)
			if err != nil {
				logger.Warn("deleting rider failed", "rider_id", id, "error", err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
			if !deleted {
				http.Error(w, "rider not found", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
