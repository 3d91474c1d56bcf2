package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

type Tag struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Color     *string   `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Tag) EntityType() replication.EntityType {
	return replication.EntityTag
}

func (t *Tag) Fields() map[string]any {
	return map[string]any{
		"id":        t.ID.String(),
		"ownerId":   t.OwnerID.String(),
		"name":      t.Name,
		"color":     optional(t.Color),
		"createdAt": t.CreatedAt,
		"updatedAt": t.UpdatedAt,
	}
}
