package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

// CollectionCardLocation places a collection card in a container or deck.
// Rows written before location edits were tracked have no UpdatedAt.
type CollectionCardLocation struct {
	ID                 uuid.UUID  `json:"id"`
	OwnerID            uuid.UUID  `json:"owner_id"`
	CollectionCardID   uuid.UUID  `json:"collection_card_id"`
	StorageContainerID *uuid.UUID `json:"storage_container_id,omitempty"`
	DeckID             *uuid.UUID `json:"deck_id,omitempty"`
	AssignedAt         time.Time  `json:"assigned_at"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

func (l *CollectionCardLocation) EntityType() replication.EntityType {
	return replication.EntityCollectionCardLocation
}

func (l *CollectionCardLocation) Fields() map[string]any {
	return map[string]any{
		"id":                 l.ID.String(),
		"ownerId":            l.OwnerID.String(),
		"collectionCardId":   l.CollectionCardID.String(),
		"storageContainerId": optionalID(l.StorageContainerID),
		"deckId":             optionalID(l.DeckID),
		"assignedAt":         l.AssignedAt,
		"updatedAt":          optionalTime(l.UpdatedAt),
	}
}
