package replication

import (
	"context"
	"fmt"
	"log/slog"
)

// Broadcaster delivers an event to the subscribers of one owner and entity
// type, possibly on other server processes.
type Broadcaster interface {
	Broadcast(ctx context.Context, entity EntityType, ownerKey string, event StreamEvent) error
}

// Hub owns one Publisher per entity type. It is created once at startup and
// shared by every connection.
type Hub struct {
	publishers map[EntityType]*Publisher
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger, publishers ...*Publisher) *Hub {
	h := &Hub{
		publishers: make(map[EntityType]*Publisher, len(publishers)),
		logger:     logger,
	}
	for _, p := range publishers {
		h.publishers[p.Entity()] = p
	}
	return h
}

// NewDefaultHub builds a hub with a publisher for every entity type.
func NewDefaultHub(logger *slog.Logger) *Hub {
	publishers := make([]*Publisher, 0, len(AllEntityTypes))
	for _, t := range AllEntityTypes {
		publishers = append(publishers, NewPublisher(t, WithLogger(logger)))
	}
	return NewHub(logger, publishers...)
}

func (h *Hub) Publisher(entity EntityType) (*Publisher, error) {
	p, ok := h.publishers[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return p, nil
}

// Broadcast publishes to the local publisher of entity.
func (h *Hub) Broadcast(_ context.Context, entity EntityType, ownerKey string, event StreamEvent) error {
	p, err := h.Publisher(entity)
	if err != nil {
		return err
	}
	p.Publish(ownerKey, event)
	return nil
}

// Stream subscribes ownerKey to each of the given entity types and merges the
// subscriptions into one channel. The channel closes when ctx is done.
func (h *Hub) Stream(ctx context.Context, ownerKey string, types []EntityType) (<-chan MultiplexedEvent, error) {
	if len(types) == 0 {
		types = AllEntityTypes
	}

	// Resolve everything before subscribing so a bad type leaks nothing.
	pubs := make([]*Publisher, 0, len(types))
	for _, t := range types {
		p, err := h.Publisher(t)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}

	streams := make(map[EntityType]Stream[StreamEvent], len(pubs))
	for _, p := range pubs {
		streams[p.Entity()] = p.Subscribe(ctx, ownerKey)
	}

	merged := Merge(ctx, streams, OnSourceError(func(key any, err error) {
		h.logger.Warn("entity stream failed", "owner", ownerKey, "entity", key, "error", err)
	}))

	out := make(chan MultiplexedEvent)
	go func() {
		defer close(out)
		for item := range merged {
			select {
			case out <- MultiplexedEvent{Type: item.Key, Event: item.Value}:
			case <-ctx.Done():
				// Drain so the merge goroutines can observe ctx and exit.
				for range merged {
				}
				return
			}
		}
	}()

	return out, nil
}
