package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

// Record is a source-of-truth row that can be replicated.
type Record interface {
	EntityType() replication.EntityType
	// Fields returns the row keyed by wire field name. Dates are time values.
	Fields() map[string]any
}

var dateFields = map[replication.EntityType][]string{
	replication.EntityStorageContainer:       {"createdAt", "updatedAt"},
	replication.EntityCollectionCard:         {"createdAt", "updatedAt"},
	replication.EntityCollectionCardLocation: {"assignedAt", "updatedAt"},
	replication.EntityDeck:                   {"createdAt", "updatedAt"},
	replication.EntityDeckCard:               {"createdAt", "updatedAt"},
	replication.EntityTag:                    {"createdAt", "updatedAt"},
}

// DateFields names the date-valued wire fields of an entity.
func DateFields(entity replication.EntityType) []string {
	return dateFields[entity]
}

// ToDocument maps a record to its replication document.
func ToDocument(r Record, deleted bool) replication.Document {
	return replication.ToReplicationDoc(r.Fields(), DateFields(r.EntityType()), deleted)
}

func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func optionalID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
