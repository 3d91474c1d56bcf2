package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/models"
	"github.com/prudhvinik1/cardsync/internal/replication"
	"github.com/prudhvinik1/cardsync/internal/repositories"
)

const (
	DefaultPullLimit = 100
	MaxPullLimit     = 1000

	ownerLockStripes = 64
)

var ErrInvalidOwner = errors.New("invalid owner key")

// SyncService implements the pull/push protocol on top of the per-entity
// repositories and forwards every accepted change to the live tail.
type SyncService struct {
	repos       map[replication.EntityType]repositories.ReplicationRepository
	broadcaster replication.Broadcaster
	batchSize   int
	logger      *slog.Logger

	// Writes and their publish happen under the owner's stripe so events
	// leave this process in commit order.
	locks [ownerLockStripes]sync.Mutex
}

func NewSyncService(
	repos map[replication.EntityType]repositories.ReplicationRepository,
	broadcaster replication.Broadcaster,
	batchSize int,
	logger *slog.Logger,
) *SyncService {
	if batchSize <= 0 {
		batchSize = DefaultPullLimit
	}
	return &SyncService{
		repos:       repos,
		broadcaster: broadcaster,
		batchSize:   min(batchSize, MaxPullLimit),
		logger:      logger,
	}
}

func (s *SyncService) repo(entity replication.EntityType) (repositories.ReplicationRepository, error) {
	r, ok := s.repos[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", replication.ErrUnknownEntity, entity)
	}
	return r, nil
}

func parseOwner(ownerKey string) (uuid.UUID, error) {
	id, err := uuid.Parse(ownerKey)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidOwner, ownerKey)
	}
	return id, nil
}

func (s *SyncService) lockOwner(entity replication.EntityType, ownerKey string) func() {
	m := &s.locks[xxhash.Sum64String(string(entity)+":"+ownerKey)%ownerLockStripes]
	m.Lock()
	return m.Unlock
}

// Pull returns the next batch after checkpoint. The returned checkpoint is
// the one of the last document, or the input checkpoint when nothing is new.
func (s *SyncService) Pull(ctx context.Context, entity replication.EntityType, ownerKey string, checkpoint *replication.Checkpoint, limit int) (*models.PullResponse, error) {
	repo, err := s.repo(entity)
	if err != nil {
		return nil, err
	}
	ownerID, err := parseOwner(ownerKey)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.batchSize
	}
	limit = min(limit, MaxPullLimit)

	docs, err := repo.PullSince(ctx, ownerID, checkpoint, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", entity, err)
	}

	next := checkpoint
	if len(docs) > 0 {
		cp, err := replication.CheckpointOf(entity, docs[len(docs)-1])
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint: %w", err)
		}
		next = &cp
	}

	return &models.PullResponse{
		Documents:  docs,
		Checkpoint: next,
	}, nil
}

// Push writes client changes and returns the conflicts. Accepted writes are
// published as one batch.
func (s *SyncService) Push(ctx context.Context, entity replication.EntityType, ownerKey string, rows []models.PushRow) ([]replication.Document, error) {
	repo, err := s.repo(entity)
	if err != nil {
		return nil, err
	}
	ownerID, err := parseOwner(ownerKey)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []replication.Document{}, nil
	}

	unlock := s.lockOwner(entity, ownerKey)
	defer unlock()

	written, conflicts, err := repo.Push(ctx, ownerID, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to push %s: %w", entity, err)
	}

	if len(written) > 0 {
		batch, err := batchOf(entity, written)
		if err != nil {
			return nil, err
		}
		s.broadcast(ctx, entity, ownerKey, batch)
	}

	if conflicts == nil {
		conflicts = []replication.Document{}
	}
	return conflicts, nil
}

// NotifyChange publishes a row written outside the push path, typically by a
// CRUD handler right after its insert, update or delete.
func (s *SyncService) NotifyChange(ctx context.Context, ownerKey string, record models.Record, deleted bool) error {
	entity := record.EntityType()
	if _, err := s.repo(entity); err != nil {
		return err
	}
	if _, err := parseOwner(ownerKey); err != nil {
		return err
	}

	batch, err := batchOf(entity, []replication.Document{models.ToDocument(record, deleted)})
	if err != nil {
		return err
	}

	unlock := s.lockOwner(entity, ownerKey)
	defer unlock()
	s.broadcast(ctx, entity, ownerKey, batch)
	return nil
}

// Resync tells every connected client of ownerKey to re-pull entity.
func (s *SyncService) Resync(ctx context.Context, entity replication.EntityType, ownerKey string) error {
	if _, err := s.repo(entity); err != nil {
		return err
	}
	if _, err := parseOwner(ownerKey); err != nil {
		return err
	}

	s.logger.Info("forcing resync", "entity", entity, "owner", ownerKey)
	s.broadcast(ctx, entity, ownerKey, replication.Resync{})
	return nil
}

// BulkDelete tombstones every row of entity for ownerKey in one statement and
// signals a resync instead of one event per row.
func (s *SyncService) BulkDelete(ctx context.Context, entity replication.EntityType, ownerKey string) (int64, error) {
	repo, err := s.repo(entity)
	if err != nil {
		return 0, err
	}
	ownerID, err := parseOwner(ownerKey)
	if err != nil {
		return 0, err
	}

	unlock := s.lockOwner(entity, ownerKey)
	defer unlock()

	n, err := repo.SoftDeleteAll(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete %s: %w", entity, err)
	}

	s.logger.Info("bulk delete", "entity", entity, "owner", ownerKey, "rows", n)
	s.broadcast(ctx, entity, ownerKey, replication.Resync{})
	return n, nil
}

// broadcast never fails the caller: the write is committed and clients that
// miss the live event catch up on their next pull.
func (s *SyncService) broadcast(ctx context.Context, entity replication.EntityType, ownerKey string, event replication.StreamEvent) {
	if err := s.broadcaster.Broadcast(ctx, entity, ownerKey, event); err != nil {
		s.logger.Error("failed to broadcast",
			"entity", entity,
			"owner", ownerKey,
			"error", err,
		)
	}
}

// batchOf wraps docs in a batch whose checkpoint is the greatest one among
// them.
func batchOf(entity replication.EntityType, docs []replication.Document) (replication.Batch, error) {
	var last *replication.Checkpoint
	for _, doc := range docs {
		cp, err := replication.CheckpointOf(entity, doc)
		if err != nil {
			return replication.Batch{}, err
		}
		if cp.After(last) {
			last = &cp
		}
	}
	return replication.Batch{Documents: docs, Checkpoint: last}, nil
}
