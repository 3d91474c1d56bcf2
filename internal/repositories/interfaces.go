package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/models"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

var ErrNotFound = errors.New("not found")

// ReplicationRepository is the source-of-truth side of the pull/push protocol
// for one entity type.
type ReplicationRepository interface {
	Entity() replication.EntityType
	// PullSince returns up to limit documents of ownerID ordered strictly
	// after checkpoint. A nil checkpoint starts from the beginning.
	PullSince(ctx context.Context, ownerID uuid.UUID, checkpoint *replication.Checkpoint, limit int) ([]replication.Document, error)
	// Push applies client writes. Rows whose assumed master state is stale
	// are not written; the current master is returned as a conflict.
	Push(ctx context.Context, ownerID uuid.UUID, rows []models.PushRow) (written, conflicts []replication.Document, err error)
	// SoftDeleteAll tombstones every live row of ownerID without emitting
	// per-row events.
	SoftDeleteAll(ctx context.Context, ownerID uuid.UUID) (int64, error)
}
