package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("not-a-url"); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	s := miniredis.RunT(t)

	pub, err := New("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer pub.Close()

	sub := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer sub.Close()

	ctx := context.Background()
	pubsub := sub.Subscribe(ctx, Channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	event := Event{Type: "category.moved", Entity: "category", EntityID: "cat_1", Actor: "avery"}
	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-pubsub.Channel():
		var got Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.Type != "category.moved" || got.EntityID != "cat_1" {
			t.Errorf("unexpected event: %+v", got)
		}
		if got.At.IsZero() {
			t.Error("expected Publish to stamp the event time")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestTryPublishSwallowsErrors(t *testing.T) {
	s := miniredis.RunT(t)
	pub, err := New("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	pub.Close()

	// Connection is closed; TryPublish must not panic or propagate.
	pub.TryPublish(context.Background(), Event{Type: "document.deleted", Entity: "document", EntityID: "doc_1"})
}
