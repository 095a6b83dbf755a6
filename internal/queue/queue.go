// Package queue carries operator notifications to an external message broker.
package queue

import (
	"context"
	"time"
)

// Supported publisher types
const (
	TypeNATS   = "nats"
	TypeRedis  = "redis"
	TypeKafka  = "kafka"
	TypeMemory = "memory"
)

// Publisher publishes messages to a subject/topic
type Publisher interface {
	// Publish delivers a single message; it returns once the broker accepted it
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases the broker connection
	Close() error
}

// Message is a published message as kept by the in-memory publisher
type Message struct {
	Subject string
	Data    []byte
	Time    time.Time
}
