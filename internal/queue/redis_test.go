package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// getRedisURL returns REDIS_URL or the local default
func getRedisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379"
}

func isRedisAvailable() bool {
	opts, err := redis.ParseURL(getRedisURL())
	if err != nil {
		return false
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

func TestRedisPublisher_Publish(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("Redis not available, skipping test")
	}

	p, err := newRedisPublisher(RedisConfig{URL: getRedisURL(), Stream: "test-ngas"})
	if err != nil {
		t.Fatalf("Failed to create Redis publisher: %v", err)
	}
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	stream := p.streamName("ngas.notify.ERROR")
	defer p.client.Del(ctx, stream)

	if err := p.Publish(ctx, "ngas.notify.ERROR", []byte("payload")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs, err := p.client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 stream entry, got %d", len(msgs))
	}
	if msgs[0].Values["data"] != "payload" {
		t.Errorf("Unexpected payload: %v", msgs[0].Values["data"])
	}
}

func TestRedisPublisher_StreamName(t *testing.T) {
	p := &RedisPublisher{config: RedisConfig{Stream: "ngas"}}
	if got := p.streamName("ngas.notify.NO_DISKS"); got != "ngas:ngas.notify.NO_DISKS" {
		t.Errorf("Unexpected stream name %s", got)
	}
}

func TestRedisPublisher_Unreachable(t *testing.T) {
	_, err := newRedisPublisher(RedisConfig{URL: "redis://127.0.0.1:1"})
	if err == nil {
		t.Fatal("Expected error for unreachable Redis")
	}
}
