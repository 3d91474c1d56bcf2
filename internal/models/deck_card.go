package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

type DeckCard struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	DeckID    uuid.UUID `json:"deck_id"`
	CardID    string    `json:"card_id"`
	Quantity  int32     `json:"quantity"`
	Board     string    `json:"board"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *DeckCard) EntityType() replication.EntityType {
	return replication.EntityDeckCard
}

func (c *DeckCard) Fields() map[string]any {
	return map[string]any{
		"id":        c.ID.String(),
		"ownerId":   c.OwnerID.String(),
		"deckId":    c.DeckID.String(),
		"cardId":    c.CardID,
		"quantity":  c.Quantity,
		"board":     c.Board,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}
