package replication

import (
	"cmp"
	"fmt"
)

const (
	UpdatedAtField  = "updatedAt"
	AssignedAtField = "assignedAt"
)

// Checkpoint orders the events of one entity type for one owner. Two rows
// stamped in the same millisecond are ordered by id.
type Checkpoint struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Compare orders checkpoints by (UpdatedAt, ID).
func Compare(a, b Checkpoint) int {
	if c := cmp.Compare(a.UpdatedAt, b.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// After reports whether c is strictly after other. A nil other stands for
// the beginning of time.
func (c Checkpoint) After(other *Checkpoint) bool {
	if other == nil {
		return true
	}
	return Compare(c, *other) > 0
}

// CheckpointOf reads the ordering key of a mapped document. Collection card
// locations may carry no updatedAt of their own and fall back to assignedAt.
func CheckpointOf(entity EntityType, doc Document) (Checkpoint, error) {
	id := doc.ID()
	if id == "" {
		return Checkpoint{}, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}

	v := doc[UpdatedAtField]
	if v == nil && entity == EntityCollectionCardLocation {
		v = doc[AssignedAtField]
	}
	if v == nil {
		return Checkpoint{}, fmt.Errorf("%w: document %s has no ordering timestamp", ErrInvalidDocument, id)
	}

	ms, err := toMillis(v)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: document %s: %v", ErrInvalidDocument, id, err)
	}
	return Checkpoint{ID: id, UpdatedAt: ms}, nil
}
