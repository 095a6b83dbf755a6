package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueNotifierPublishesJSON(t *testing.T) {
	pub := queue.NewMemoryPublisher()
	n := NewQueueNotifier(pub, "", logging.NewNop())

	err := n.Notify(context.Background(), Event{
		Type:    TypeNoDisks,
		Subject: "DISK SPACE INAVAILABILITY",
		Body:    "image/x-fits",
		HostID:  "ngas1",
	})
	require.NoError(t, err)

	msgs := pub.Messages("ngas.notify.NO_DISKS")
	require.Len(t, msgs, 1)

	var got Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "DISK SPACE INAVAILABILITY", got.Subject)
	assert.Equal(t, "ngas1", got.HostID)
	assert.False(t, got.Time.IsZero())
}

func TestQueueNotifierCustomPrefix(t *testing.T) {
	n := NewQueueNotifier(queue.NewMemoryPublisher(), "site.alerts", logging.NewNop())
	assert.Equal(t, "site.alerts.ERROR", n.Subject(TypeError))
}

func TestQueueNotifierPropagatesPublishError(t *testing.T) {
	pub := queue.NewMemoryPublisher()
	require.NoError(t, pub.Close())

	n := NewQueueNotifier(pub, "", logging.NewNop())
	assert.Error(t, n.Notify(context.Background(), Event{Type: TypeError, Subject: "x"}))
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()

	require.NoError(t, r.Notify(ctx, Event{Type: TypeError, Subject: "A", Time: time.Now()}))
	require.NoError(t, r.Notify(ctx, Event{Type: TypeNoDisks, Subject: "B"}))
	require.NoError(t, r.Notify(ctx, Event{Type: TypeError, Subject: "A"}))

	assert.Len(t, r.Events(), 3)
	assert.Len(t, r.BySubject("A"), 2)

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	n, closeFn, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)
	assert.NoError(t, closeFn())

	cfg.Notification.Enabled = true
	cfg.Queue.Type = "memory"
	n, closeFn, err = New(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &QueueNotifier{}, n)
	assert.NoError(t, closeFn())
	// Closed publisher rejects further events
	assert.Error(t, n.Notify(context.Background(), Event{Type: TypeError}))
}
