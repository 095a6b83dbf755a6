package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func topologyConfig() *Config {
	cfg := DefaultConfig()
	cfg.StorageSets = []StorageSetConfig{
		{ID: "set1", DiskLabel: "FITS", MainDiskSlotID: "1", RepDiskSlotID: "2"},
		{ID: "set2", DiskLabel: "FITS", MainDiskSlotID: "3", RepDiskSlotID: "4"},
	}
	cfg.Streams = []StreamConfig{
		{MimeType: "image/x-fits", StorageSetIDs: []string{"set1", "set2"}},
	}
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "default config should be valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid http port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 0 },
			wantErr: true,
		},
		{
			name:    "missing host id",
			mutate:  func(c *Config) { c.Node.HostID = "" },
			wantErr: true,
		},
		{
			name:    "missing root dir",
			mutate:  func(c *Config) { c.Node.RootDir = "" },
			wantErr: true,
		},
		{
			name: "duplicate storage set",
			mutate: func(c *Config) {
				c.StorageSets = append(c.StorageSets, StorageSetConfig{ID: "set1", MainDiskSlotID: "9"})
			},
			wantErr: true,
		},
		{
			name: "slot shared by two sets",
			mutate: func(c *Config) {
				c.StorageSets[1].RepDiskSlotID = "1"
			},
			wantErr: true,
		},
		{
			name: "main slot missing",
			mutate: func(c *Config) {
				c.StorageSets[0].MainDiskSlotID = ""
			},
			wantErr: true,
		},
		{
			name: "set without replication slot is valid",
			mutate: func(c *Config) {
				c.StorageSets[1].RepDiskSlotID = ""
			},
			wantErr: false,
		},
		{
			name: "stream referencing unknown set",
			mutate: func(c *Config) {
				c.Streams[0].StorageSetIDs = append(c.Streams[0].StorageSetIDs, "nope")
			},
			wantErr: true,
		},
		{
			name: "duplicate stream",
			mutate: func(c *Config) {
				c.Streams = append(c.Streams, StreamConfig{MimeType: "image/x-fits"})
			},
			wantErr: true,
		},
		{
			name:    "unknown metadata backend",
			mutate:  func(c *Config) { c.Metadata.Backend = "sqlite" },
			wantErr: true,
		},
		{
			name: "etcd without endpoints",
			mutate: func(c *Config) {
				c.Etcd.Endpoints = nil
			},
			wantErr: true,
		},
		{
			name: "etcd ignored for memory backend",
			mutate: func(c *Config) {
				c.Metadata.Backend = "memory"
				c.Etcd.Endpoints = nil
			},
			wantErr: false,
		},
		{
			name: "postgres backend without database",
			mutate: func(c *Config) {
				c.Metadata.Backend = "postgres"
				c.Postgres.Database = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid logging level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := topologyConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  http_port: 8088
node:
  host_id: ngas-node-1
  root_dir: /data/ngas
  archive_name: ESO-ARCHIVE
storage_sets:
  - id: set1
    disk_label: FITS
    main_slot: "1"
    rep_slot: "2"
streams:
  - mime_type: image/x-fits
    storage_sets: [set1]
metadata:
  backend: memory
etcd:
  dial_timeout: 3s
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPPort != 8088 {
		t.Errorf("HTTPPort = %d, want 8088", cfg.Server.HTTPPort)
	}
	if cfg.Node.HostID != "ngas-node-1" {
		t.Errorf("HostID = %s", cfg.Node.HostID)
	}
	if cfg.Node.ArchiveName != "ESO-ARCHIVE" {
		t.Errorf("ArchiveName = %s", cfg.Node.ArchiveName)
	}
	if len(cfg.StorageSets) != 1 || cfg.StorageSets[0].RepDiskSlotID != "2" {
		t.Errorf("unexpected storage sets: %+v", cfg.StorageSets)
	}
	if len(cfg.Streams) != 1 || cfg.Streams[0].StorageSetIDs[0] != "set1" {
		t.Errorf("unexpected streams: %+v", cfg.Streams)
	}
	if cfg.Etcd.DialTimeout != 3*time.Second {
		t.Errorf("DialTimeout = %v", cfg.Etcd.DialTimeout)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode")
	}
	// Defaults survive partial files
	if !cfg.Node.AllowArchive {
		t.Error("AllowArchive should default to true")
	}
	if cfg.Notification.SubjectPrefix != "ngas.notify" {
		t.Errorf("SubjectPrefix = %s", cfg.Notification.SubjectPrefix)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 0\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}

	cfg := LoadOrDefault(path)
	if cfg.Server.HTTPPort != 7777 {
		t.Errorf("LoadOrDefault should fall back to defaults, got port %d", cfg.Server.HTTPPort)
	}
}

func TestSlotMountPoint(t *testing.T) {
	cfg := topologyConfig()
	cfg.Node.RootDir = "/NGAS"
	cfg.StorageSets[0].MainMountDir = "data1"

	if got := cfg.SlotMountPoint("1"); got != "/NGAS/data1" {
		t.Errorf("SlotMountPoint(1) = %s", got)
	}
	if got := cfg.SlotMountPoint("2"); got != "/NGAS/2" {
		t.Errorf("SlotMountPoint(2) = %s", got)
	}
	if got := cfg.SlotMountPoint("99"); got != "" {
		t.Errorf("SlotMountPoint(99) = %s, want empty", got)
	}
}

func TestPostgresURLs(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: 5433, Database: "ngas", User: "u", Password: "p", SSLMode: "disable"}

	if got := pg.DatabaseDSN(); got != "postgres://u:p@db:5433/ngas?sslmode=disable" {
		t.Errorf("DatabaseDSN() = %s", got)
	}
	if got := pg.MigrateURL(); got != "pgx5://u:p@db:5433/ngas?sslmode=disable" {
		t.Errorf("MigrateURL() = %s", got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.RootDir = filepath.Join(t.TempDir(), "ngas", "root")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error = %v", err)
	}
	if info, err := os.Stat(cfg.Node.RootDir); err != nil || !info.IsDir() {
		t.Errorf("root dir not created: %v", err)
	}
}

func TestArchiveProxy(t *testing.T) {
	n := NodeConfig{}
	if n.IsArchiveProxy() {
		t.Error("no archive units configured")
	}
	n.ArchiveUnits = []string{"ngas2:7777"}
	if !n.IsArchiveProxy() {
		t.Error("archive units configured")
	}
}
