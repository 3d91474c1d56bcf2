package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

type Deck struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Format      string    `json:"format"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d *Deck) EntityType() replication.EntityType {
	return replication.EntityDeck
}

func (d *Deck) Fields() map[string]any {
	return map[string]any{
		"id":          d.ID.String(),
		"ownerId":     d.OwnerID.String(),
		"name":        d.Name,
		"format":      d.Format,
		"description": optional(d.Description),
		"createdAt":   d.CreatedAt,
		"updatedAt":   d.UpdatedAt,
	}
}
