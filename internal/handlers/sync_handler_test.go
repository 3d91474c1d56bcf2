package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/models"
	"github.com/prudhvinik1/cardsync/internal/replication"
	"github.com/prudhvinik1/cardsync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

// fakeSync records the last call and returns canned results.
type fakeSync struct {
	entity     replication.EntityType
	owner      string
	checkpoint *replication.Checkpoint
	limit      int
	rows       []models.PushRow

	pullResp  *models.PullResponse
	conflicts []replication.Document
	err       error
	resynced  bool
}

func (f *fakeSync) Pull(_ context.Context, entity replication.EntityType, ownerKey string, checkpoint *replication.Checkpoint, limit int) (*models.PullResponse, error) {
	f.entity, f.owner, f.checkpoint, f.limit = entity, ownerKey, checkpoint, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.pullResp, nil
}

func (f *fakeSync) Push(_ context.Context, entity replication.EntityType, ownerKey string, rows []models.PushRow) ([]replication.Document, error) {
	f.entity, f.owner, f.rows = entity, ownerKey, rows
	if f.err != nil {
		return nil, f.err
	}
	return f.conflicts, nil
}

func (f *fakeSync) Resync(_ context.Context, entity replication.EntityType, ownerKey string) error {
	f.entity, f.owner, f.resynced = entity, ownerKey, true
	return f.err
}

func (f *fakeSync) BulkDelete(_ context.Context, entity replication.EntityType, ownerKey string) (int64, error) {
	f.entity, f.owner = entity, ownerKey
	return 3, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, sync SyncAPI, hub *replication.Hub) (http.Handler, string, string) {
	t.Helper()
	tokens := services.NewTokenService(testSecret, time.Hour)
	owner := uuid.New()
	token, _, err := tokens.IssueToken(owner, "test-session")
	require.NoError(t, err)

	router := NewRouter(
		NewSyncHandler(sync),
		NewStreamHandler(hub, 50*time.Millisecond, testLogger()),
		tokens,
	)
	return router, owner.String(), token
}

func doRequest(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSync{}, replication.NewDefaultHub(testLogger()))

	rec := doRequest(router, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouter_RequiresToken(t *testing.T) {
	router, _, _ := newTestRouter(t, &fakeSync{}, replication.NewDefaultHub(testLogger()))

	rec := doRequest(router, http.MethodPost, "/sync/deck/pull", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodPost, "/sync/deck/pull", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestSyncHandler_Pull tests that the checkpoint and limit reach the service and documents are never null
func TestSyncHandler_Pull(t *testing.T) {
	// ARRANGE
	sync := &fakeSync{pullResp: &models.PullResponse{Checkpoint: &replication.Checkpoint{ID: "x", UpdatedAt: 7}}}
	router, owner, token := newTestRouter(t, sync, replication.NewDefaultHub(testLogger()))

	// ACT
	rec := doRequest(router, http.MethodPost, "/sync/collectionCard/pull", token, map[string]any{
		"checkpoint": map[string]any{"id": "x", "updatedAt": 7},
		"limit":      25,
	})

	// ASSERT
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, replication.EntityCollectionCard, sync.entity)
	assert.Equal(t, owner, sync.owner)
	assert.Equal(t, &replication.Checkpoint{ID: "x", UpdatedAt: 7}, sync.checkpoint)
	assert.Equal(t, 25, sync.limit)
	assert.JSONEq(t, `{"documents":[],"checkpoint":{"id":"x","updatedAt":7}}`, rec.Body.String())
}

func TestSyncHandler_PullEmptyBody(t *testing.T) {
	sync := &fakeSync{pullResp: &models.PullResponse{}}
	router, _, token := newTestRouter(t, sync, replication.NewDefaultHub(testLogger()))

	rec := doRequest(router, http.MethodPost, "/sync/tag/pull", token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sync.checkpoint)
	assert.JSONEq(t, `{"documents":[],"checkpoint":null}`, rec.Body.String())
}

func TestSyncHandler_UnknownEntity(t *testing.T) {
	router, _, token := newTestRouter(t, &fakeSync{}, replication.NewDefaultHub(testLogger()))

	rec := doRequest(router, http.MethodPost, "/sync/wizard/pull", token, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncHandler_Push(t *testing.T) {
	conflict := replication.Document{"id": "a", "updatedAt": float64(5), replication.DeletedField: false}
	sync := &fakeSync{conflicts: []replication.Document{conflict}}
	router, _, token := newTestRouter(t, sync, replication.NewDefaultHub(testLogger()))

	rec := doRequest(router, http.MethodPost, "/sync/deck/push", token, []map[string]any{
		{"newDocumentState": map[string]any{"id": "a", "name": "Burn"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sync.rows, 1)
	assert.Equal(t, "Burn", sync.rows[0].NewDocumentState["name"])
	assert.Nil(t, sync.rows[0].AssumedMasterState)
	assert.JSONEq(t, `[{"id":"a","updatedAt":5,"_deleted":false}]`, rec.Body.String())
}

func TestSyncHandler_PushValidation(t *testing.T) {
	sync := &fakeSync{}
	router, _, token := newTestRouter(t, sync, replication.NewDefaultHub(testLogger()))

	rec := doRequest(router, http.MethodPost, "/sync/deck/push", token, []map[string]any{{"assumedMasterState": nil}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/sync/deck/push", token, map[string]any{"not": "an array"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sync.err = replication.ErrInvalidDocument
	rec = doRequest(router, http.MethodPost, "/sync/deck/push", token, []map[string]any{{"newDocumentState": map[string]any{}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncHandler_ResyncAndBulkDelete(t *testing.T) {
	sync := &fakeSync{}
	router, _, token := newTestRouter(t, sync, replication.NewDefaultHub(testLogger()))

	rec := doRequest(router, http.MethodPost, "/sync/storageContainer/resync", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, sync.resynced)
	assert.Equal(t, replication.EntityStorageContainer, sync.entity)

	rec = doRequest(router, http.MethodDelete, "/sync/collectionCard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":3}`, rec.Body.String())
}
