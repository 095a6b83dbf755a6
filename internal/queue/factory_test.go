package queue

import (
	"testing"

	"github.com/ngasd/ngasd/internal/config"
)

func TestNewPublisher_Memory(t *testing.T) {
	p, err := NewPublisher(config.QueueConfig{Type: "MEMORY"})
	if err != nil {
		t.Fatalf("Failed to create memory publisher: %v", err)
	}
	defer func() { _ = p.Close() }()

	if _, ok := p.(*MemoryPublisher); !ok {
		t.Fatalf("Expected *MemoryPublisher, got %T", p)
	}
}

func TestNewPublisher_DefaultsToNATS(t *testing.T) {
	_, url := setupTestNATS(t)

	p, err := NewPublisher(config.QueueConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create default publisher: %v", err)
	}
	defer func() { _ = p.Close() }()

	if _, ok := p.(*NATSPublisher); !ok {
		t.Fatalf("Expected *NATSPublisher, got %T", p)
	}
}

func TestNewPublisher_KafkaRequiresBrokers(t *testing.T) {
	_, err := NewPublisher(config.QueueConfig{Type: "kafka"})
	if err == nil {
		t.Fatal("Expected error for kafka without brokers")
	}
}

func TestNewPublisher_UnsupportedType(t *testing.T) {
	_, err := NewPublisher(config.QueueConfig{Type: "unknown"})
	if err == nil {
		t.Fatal("Expected error for unsupported queue type")
	}
}
