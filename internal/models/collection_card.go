package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

type CollectionCard struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CardID    string    `json:"card_id"`
	Quantity  int32     `json:"quantity"`
	Condition string    `json:"condition"`
	Finish    string    `json:"finish"`
	Language  string    `json:"language"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *CollectionCard) EntityType() replication.EntityType {
	return replication.EntityCollectionCard
}

func (c *CollectionCard) Fields() map[string]any {
	return map[string]any{
		"id":        c.ID.String(),
		"ownerId":   c.OwnerID.String(),
		"cardId":    c.CardID,
		"quantity":  c.Quantity,
		"condition": c.Condition,
		"finish":    c.Finish,
		"language":  c.Language,
		"notes":     optional(c.Notes),
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}
