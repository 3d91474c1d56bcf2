package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

type StorageContainer struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *StorageContainer) EntityType() replication.EntityType {
	return replication.EntityStorageContainer
}

func (c *StorageContainer) Fields() map[string]any {
	return map[string]any{
		"id":          c.ID.String(),
		"ownerId":     c.OwnerID.String(),
		"name":        c.Name,
		"description": optional(c.Description),
		"type":        c.Type,
		"createdAt":   c.CreatedAt,
		"updatedAt":   c.UpdatedAt,
	}
}
