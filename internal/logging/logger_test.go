package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/ngasd/ngasd/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel).Component("reconciler")

	logger.Info("Disk added", "disk_id", "disk-1", "slot_id", "1")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "Disk added", entry["message"])
	assert.Equal(t, "reconciler", entry["component"])
	assert.Equal(t, "disk-1", entry["disk_id"])
	assert.Equal(t, "1", entry["slot_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	logger.Error("Write failed", "error", errors.New("disk full"))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "disk full", entry["error"])
}

func TestLoggerOddFieldsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	logger.Warn("Odd", "key")

	entry := decodeLine(t, &buf)
	_, exists := entry["key"]
	assert.False(t, exists)
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, zerolog.DebugLevel)
	_ = parent.With("host_id", "ngas1")

	parent.Info("plain")
	entry := decodeLine(t, &buf)
	_, exists := entry["host_id"]
	assert.False(t, exists)
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithHostID(ctx, "ngas1")
	ctx = WithLogger(ctx, logger)

	InfoCtx(ctx, "with context")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "ngas1", entry["host_id"])
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.Same(t, Global(), FromContext(context.Background()))
}

func TestNewFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ngasd.log")

	logger, err := NewFromConfig(config.LoggingConfig{
		Level:      "debug",
		Format:     "json",
		OutputPath: path,
	})
	require.NoError(t, err)
	logger.Info("to file")

	assert.FileExists(t, path)
}

func TestFiberMiddlewareRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	app := fiber.New()
	app.Use(FiberMiddleware(logger))
	app.Get("/v1/disks", func(c *fiber.Ctx) error {
		return c.SendString(RequestID(c.UserContext()))
	})

	req := httptest.NewRequest("GET", "/v1/disks", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, "fixed-id", resp.Header.Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "fixed-id")
}

func TestFiberMiddlewareSkipPaths(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	app := fiber.New()
	app.Use(FiberMiddlewareWithConfig(logger, DefaultMiddlewareConfig()))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(200) })

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Zero(t, buf.Len())
}
