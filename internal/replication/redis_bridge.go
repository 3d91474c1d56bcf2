package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBridge fans published events out to every server process through
// Redis pub/sub. Broadcast publishes to Redis; Run relays everything
// received from Redis into the local Hub, including this process's own
// messages.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	prefix string
	logger *slog.Logger
}

func NewRedisBridge(client *redis.Client, hub *Hub, prefix string, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{
		client: client,
		hub:    hub,
		prefix: prefix,
		logger: logger,
	}
}

// Channel is the Redis channel for one entity type and owner.
func (b *RedisBridge) Channel(entity EntityType, ownerKey string) string {
	return fmt.Sprintf("%s:%s:%s", b.prefix, entity, ownerKey)
}

func (b *RedisBridge) parseChannel(channel string) (EntityType, string, error) {
	rest, ok := strings.CutPrefix(channel, b.prefix+":")
	if !ok {
		return "", "", fmt.Errorf("channel %q outside prefix %q", channel, b.prefix)
	}
	entityName, owner, ok := strings.Cut(rest, ":")
	if !ok || owner == "" {
		return "", "", fmt.Errorf("malformed channel %q", channel)
	}
	entity, err := ParseEntityType(entityName)
	if err != nil {
		return "", "", err
	}
	return entity, owner, nil
}

func (b *RedisBridge) Broadcast(ctx context.Context, entity EntityType, ownerKey string, event StreamEvent) error {
	if _, err := b.hub.Publisher(entity); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}

	if err := b.client.Publish(ctx, b.Channel(entity, ownerKey), data).Err(); err != nil {
		return fmt.Errorf("failed to publish stream event: %w", err)
	}
	return nil
}

// Run relays Redis messages into the hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+":*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	b.logger.Info("redis bridge started", "pattern", b.prefix+":*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("redis bridge stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			b.relay(msg)
		}
	}
}

func (b *RedisBridge) relay(msg *redis.Message) {
	entity, owner, err := b.parseChannel(msg.Channel)
	if err != nil {
		b.logger.Warn("ignoring redis message", "channel", msg.Channel, "error", err)
		return
	}

	event, err := DecodeStreamEvent([]byte(msg.Payload))
	if err != nil {
		b.logger.Warn("ignoring redis message", "channel", msg.Channel, "error", err)
		return
	}

	if err := b.hub.Broadcast(context.Background(), entity, owner, event); err != nil {
		b.logger.Warn("failed to relay redis message", "channel", msg.Channel, "error", err)
	}
}
