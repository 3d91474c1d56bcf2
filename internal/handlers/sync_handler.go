package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/cardsync/internal/models"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

const maxBodyBytes = 8 << 20

// SyncAPI is the subset of services.SyncService the HTTP layer uses.
type SyncAPI interface {
	Pull(ctx context.Context, entity replication.EntityType, ownerKey string, checkpoint *replication.Checkpoint, limit int) (*models.PullResponse, error)
	Push(ctx context.Context, entity replication.EntityType, ownerKey string, rows []models.PushRow) ([]replication.Document, error)
	Resync(ctx context.Context, entity replication.EntityType, ownerKey string) error
	BulkDelete(ctx context.Context, entity replication.EntityType, ownerKey string) (int64, error)
}

type SyncHandler struct {
	sync SyncAPI
}

func NewSyncHandler(sync SyncAPI) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Routes mounts the per-entity verbs under /{entity}.
func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/{entity}/pull", h.Pull)
	r.Post("/{entity}/push", h.Push)
	r.Post("/{entity}/resync", h.Resync)
	r.Delete("/{entity}", h.BulkDelete)
}

func (h *SyncHandler) target(w http.ResponseWriter, r *http.Request) (replication.EntityType, string, bool) {
	owner, ok := OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner")
		return "", "", false
	}
	entity, err := replication.ParseEntityType(chi.URLParam(r, "entity"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", "", false
	}
	return entity, owner, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	entity, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	var req models.PullRequest
	if err := decodeBody(r, &req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.sync.Pull(r.Context(), entity, owner, req.Checkpoint, req.Limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if resp.Documents == nil {
		resp.Documents = []replication.Document{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	entity, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	var rows []models.PushRow
	if err := decodeBody(r, &rows); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, row := range rows {
		if row.NewDocumentState == nil {
			writeError(w, http.StatusBadRequest, "newDocumentState is required")
			return
		}
	}

	conflicts, err := h.sync.Push(r.Context(), entity, owner, rows)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func (h *SyncHandler) Resync(w http.ResponseWriter, r *http.Request) {
	entity, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.sync.Resync(r.Context(), entity, owner); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SyncHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	entity, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	n, err := h.sync.BulkDelete(r.Context(), entity, owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
