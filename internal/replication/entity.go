package replication

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEntity = errors.New("unknown entity type")

// EntityType names one replicated collection. The values are the wire names
// clients use in stream events and sync URLs.
type EntityType string

const (
	EntityDeck                   EntityType = "deck"
	EntityDeckCard               EntityType = "deckCard"
	EntityStorageContainer       EntityType = "storageContainer"
	EntityCollectionCard         EntityType = "collectionCard"
	EntityCollectionCardLocation EntityType = "collectionCardLocation"
	EntityTag                    EntityType = "tag"
)

// AllEntityTypes lists every replicated entity in a fixed order.
var AllEntityTypes = []EntityType{
	EntityStorageContainer,
	EntityCollectionCard,
	EntityCollectionCardLocation,
	EntityDeck,
	EntityDeckCard,
	EntityTag,
}

func ParseEntityType(s string) (EntityType, error) {
	for _, t := range AllEntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// ParseEntityTypes parses a comma separated list. An empty list selects
// every entity type. Duplicates are collapsed.
func ParseEntityTypes(list string) ([]EntityType, error) {
	if strings.TrimSpace(list) == "" {
		return AllEntityTypes, nil
	}

	seen := make(map[EntityType]bool)
	var types []EntityType
	for _, part := range strings.Split(list, ",") {
		t, err := ParseEntityType(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	return types, nil
}
