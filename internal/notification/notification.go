// Package notification delivers operator notifications raised by the disk
// subsystem.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/queue"
)

// Event types
const (
	TypeError   = "ERROR"
	TypeNoDisks = "NO_DISKS"
)

// Event is a single operator notification
type Event struct {
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	HostID  string    `json:"host_id"`
	Time    time.Time `json:"time"`
}

// Notifier delivers events
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// QueueNotifier publishes events as JSON on <prefix>.<type>
type QueueNotifier struct {
	publisher queue.Publisher
	prefix    string
	logger    *logging.Logger
}

// NewQueueNotifier creates a notifier on top of a queue publisher
func NewQueueNotifier(publisher queue.Publisher, prefix string, logger *logging.Logger) *QueueNotifier {
	if prefix == "" {
		prefix = "ngas.notify"
	}
	return &QueueNotifier{
		publisher: publisher,
		prefix:    prefix,
		logger:    logger.Component("notification"),
	}
}

// Subject returns the queue subject for an event type
func (n *QueueNotifier) Subject(eventType string) string {
	return n.prefix + "." + eventType
}

// Notify publishes the event
func (n *QueueNotifier) Notify(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := n.Subject(ev.Type)
	if err := n.publisher.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish notification %q: %w", ev.Subject, err)
	}

	n.logger.Info("Notification sent", "type", ev.Type, "subject", ev.Subject, "queue_subject", subject)
	return nil
}

// LogNotifier only logs events
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a logging notifier
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Component("notification")}
}

// Notify logs the event at warn level
func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	n.logger.Warn(ev.Subject, "type", ev.Type, "host_id", ev.HostID, "body", ev.Body)
	return nil
}

// Recorder collects events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify records the event
func (r *Recorder) Notify(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// BySubject returns the recorded events with the given subject
func (r *Recorder) BySubject(subject string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Subject == subject {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// New builds the notifier selected by configuration. The returned closer
// releases the queue connection, if any.
func New(cfg *config.Config, logger *logging.Logger) (Notifier, func() error, error) {
	if !cfg.Notification.Enabled {
		return NewLogNotifier(logger), func() error { return nil }, nil
	}

	publisher, err := queue.NewPublisher(cfg.Queue)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create notification publisher: %w", err)
	}
	return NewQueueNotifier(publisher, cfg.Notification.SubjectPrefix, logger), publisher.Close, nil
}
