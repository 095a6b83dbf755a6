package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/models"
)

func newDiskApp(t *testing.T) *fiber.App {
	t.Helper()

	gw := metadata.NewMemoryGateway()
	for _, d := range []*models.DiskRecord{
		{DiskID: "d1", HostID: "ngas1", Mounted: true},
		{DiskID: "d2", HostID: "ngas1"},
		{DiskID: "d3", HostID: "ngas2", Mounted: true},
	} {
		if _, err := gw.WriteDisk(context.Background(), d); err != nil {
			t.Fatalf("Failed to seed disk: %v", err)
		}
	}

	h := New(logging.NewNop(), nil, gw)
	app := fiber.New()
	app.Get("/v1/disks", h.ListDisks)
	app.Post("/v1/disks/target", h.FindTargetDisk)
	app.Post("/v1/disks/:disk_id/status", h.UpdateDiskStatus)
	return app
}

func TestHandler_ListDisks(t *testing.T) {
	app := newDiskApp(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"d1", "d2", "d3"}},
		{"?host_id=ngas1", []string{"d1", "d2"}},
		{"?mounted=true", []string{"d1", "d3"}},
		{"?mounted=false", []string{"d2"}},
		{"?host_id=ngas1&mounted=true", []string{"d1"}},
		{"?host_id=nobody", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", "/v1/disks"+tt.query, nil))
			if err != nil {
				t.Fatalf("Failed to perform request: %v", err)
			}
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
			}

			var list models.DiskListResponse
			if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			got := make([]string, 0, len(list.Disks))
			for _, d := range list.Disks {
				got = append(got, d.DiskID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expected disks %v, got %v", tt.want, got)
			}
			if list.Count != len(tt.want) {
				t.Errorf("Expected count %d, got %d", len(tt.want), list.Count)
			}
		})
	}
}

func TestHandler_RequestValidation(t *testing.T) {
	app := newDiskApp(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed target body", "/v1/disks/target", `{"mime_type":`},
		{"blank mime-type", "/v1/disks/target", `{"mime_type":"  "}`},
		{"negative required bytes", "/v1/disks/target", `{"mime_type":"image/x-fits","required_bytes":-5}`},
		{"malformed status body", "/v1/disks/d1/status", `[]`},
		{"negative io time", "/v1/disks/d1/status", `{"file_size":1,"io_time":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Failed to perform request: %v", err)
			}
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", fiber.StatusBadRequest, resp.StatusCode)
			}
		})
	}
}
