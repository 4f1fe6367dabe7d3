package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalBrokerPreservesOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewLocalBroker(8)
	got := make(chan string, 3)
	go broker.Subscribe(ctx, func(data []byte) { got <- string(data) })

	for _, msg := range []string{"a", "b", "c"} {
		if err := broker.Publish(ctx, []byte(msg)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case msg := <-got:
			if msg != want {
				t.Fatalf("expected %s, got %s", want, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestLocalBrokerPublishHonoursContext(t *testing.T) {
	broker := NewLocalBroker(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := broker.Publish(ctx, []byte("x")); err == nil {
		t.Fatalf("expected error when nobody is subscribed and ctx is cancelled")
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewRedisBroker(client, "campuschat:test")
	got := make(chan string, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		broker.Subscribe(ctx, func(data []byte) { got <- string(data) })
	}()
	<-ready

	deadline := time.After(3 * time.Second)
	for {
		if err := broker.Publish(ctx, []byte("ping")); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case msg := <-got:
			if msg != "ping" {
				t.Fatalf("unexpected payload %s", msg)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for redis delivery")
		}
	}
}
