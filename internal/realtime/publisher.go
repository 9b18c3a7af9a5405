// Package realtime publishes mutation events to a Redis channel. The UI's
// realtime layer subscribes to keep open trees and document lists fresh.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel every event goes out on.
const Channel = "docvault.events"

// Event describes one committed mutation.
type Event struct {
	Type     string    `json:"type"`   // e.g. "category.moved", "document.uploaded"
	Entity   string    `json:"entity"` // "category" | "document" | "share"
	EntityID string    `json:"entityId"`
	Actor    string    `json:"actor"`
	At       time.Time `json:"at"`
}

// Publisher fans events out over Redis pub/sub.
type Publisher struct {
	client *redis.Client
}

// New connects a publisher. Fails fast if Redis is unreachable so a
// misconfigured URL surfaces at startup, not on the first mutation.
func New(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Publisher{client: client}, nil
}

// NewWithClient wraps an existing Redis client (shared with the session
// store when both point at the same instance).
func NewWithClient(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends one event. Errors are returned for the caller to log;
// mutations never fail because an event did not go out.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// TryPublish is Publish with the error logged instead of returned, for
// fire-and-forget call sites inside mutation paths.
func (p *Publisher) TryPublish(ctx context.Context, event Event) {
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("realtime: publish %s %s: %v", event.Type, event.EntityID, err)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
