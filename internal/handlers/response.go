package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prudhvinik1/cardsync/internal/replication"
	"github.com/prudhvinik1/cardsync/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, replication.ErrUnknownEntity):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, replication.ErrInvalidDocument), errors.Is(err, services.ErrInvalidOwner):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("sync request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
