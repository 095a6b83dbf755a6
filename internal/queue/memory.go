package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryPublisher keeps published messages in memory.
// Used for development and tests without external dependencies.
type MemoryPublisher struct {
	messages []Message
	closed   bool
	mu       sync.Mutex
}

// NewMemoryPublisher creates an empty in-memory publisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records a copy of the message
func (p *MemoryPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	p.messages = append(p.messages, Message{Subject: subject, Data: dataCopy, Time: time.Now()})
	return nil
}

// Messages returns the messages published on subject, oldest first
func (p *MemoryPublisher) Messages(subject string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Message
	for _, m := range p.messages {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// Drain returns and forgets every published message
func (p *MemoryPublisher) Drain() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.messages
	p.messages = nil
	return out
}

// Close rejects further publishes
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
