package config

import (
	"fmt"
	"time"
)

// Config represents the complete node configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Node         NodeConfig         `mapstructure:"node"`
	StorageSets  []StorageSetConfig `mapstructure:"storage_sets"`
	Streams      []StreamConfig     `mapstructure:"streams"`
	Inventory    InventoryConfig    `mapstructure:"inventory"`
	Metadata     MetadataConfig     `mapstructure:"metadata"`
	Etcd         EtcdConfig         `mapstructure:"etcd"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Notification NotificationConfig `mapstructure:"notification"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig represents the admin HTTP server configuration
type ServerConfig struct {
	Host          string `mapstructure:"host"`           // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort      int    `mapstructure:"http_port"`      // HTTP server port
	AdvertiseHost string `mapstructure:"advertise_host"` // Address published in etcd, defaults to the outbound IP
}

// NodeConfig describes this archive node
type NodeConfig struct {
	HostID       string   `mapstructure:"host_id"`
	RootDir      string   `mapstructure:"root_dir"`     // Mount root, every slot mount point lives below it
	ArchiveName  string   `mapstructure:"archive_name"` // Archive name stamped on every disk record
	AllowArchive bool     `mapstructure:"allow_archive"`
	AllowRemove  bool     `mapstructure:"allow_remove"`
	Replication  bool     `mapstructure:"replication"`   // Require replication disks when configured
	ArchiveUnits []string `mapstructure:"archive_units"` // Proxy targets; when set local disks are not mandatory
	AutoOnline   bool     `mapstructure:"auto_online"`   // Go Online right after start
}

// StorageSetConfig pairs a main slot with an optional replication slot
type StorageSetConfig struct {
	ID               string `mapstructure:"id"`
	DiskLabel        string `mapstructure:"disk_label"`
	MainDiskSlotID   string `mapstructure:"main_slot"`
	RepDiskSlotID    string `mapstructure:"rep_slot"`
	MainMountDir     string `mapstructure:"main_mount_dir"` // Relative to node.root_dir, defaults to the slot id
	RepMountDir      string `mapstructure:"rep_mount_dir"`
	MainManufacturer string `mapstructure:"main_manufacturer"`
	RepManufacturer  string `mapstructure:"rep_manufacturer"`
	MainDiskType     string `mapstructure:"main_disk_type"`
	RepDiskType      string `mapstructure:"rep_disk_type"`
}

// StreamConfig maps a mime-type to its eligible storage sets
type StreamConfig struct {
	MimeType      string   `mapstructure:"mime_type"`
	StorageSetIDs []string `mapstructure:"storage_sets"`
}

// InventoryConfig controls the physical disk probe
type InventoryConfig struct {
	// InitDiskIDs writes a fresh disk id onto mount points that do not carry one yet.
	InitDiskIDs bool `mapstructure:"init_disk_ids"`
}

// MetadataConfig selects the persistence backend
type MetadataConfig struct {
	Backend string `mapstructure:"backend"` // etcd (default), postgres, memory
}

// EtcdConfig represents etcd configuration
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// PostgresConfig represents PostgreSQL configuration
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// QueueConfig represents message queue configuration used for notifications
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB     int    `mapstructure:"redis_db"`     // Redis database number (default: 0)
	RedisStream string `mapstructure:"redis_stream"` // Redis stream prefix (default: "ngas")

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"` // Kafka broker addresses
}

// NotificationConfig controls where notifications go
type NotificationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`        // Publish notifications on the queue; log only when false
	SubjectPrefix string `mapstructure:"subject_prefix"` // Default: ngas.notify
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`  // Enable/disable API key authentication
	APIKeys []string `mapstructure:"api_keys"` // List of valid API keys
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}

	if err := c.validateTopology(); err != nil {
		return fmt.Errorf("storage topology: %w", err)
	}

	if err := c.Metadata.Validate(); err != nil {
		return fmt.Errorf("metadata config: %w", err)
	}

	switch c.Metadata.Backend {
	case "etcd":
		if err := c.Etcd.Validate(); err != nil {
			return fmt.Errorf("etcd config: %w", err)
		}
	case "postgres":
		if err := c.Postgres.Validate(); err != nil {
			return fmt.Errorf("postgres config: %w", err)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates node configuration
func (c *NodeConfig) Validate() error {
	if c.HostID == "" {
		return fmt.Errorf("host_id is required")
	}
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	return nil
}

// validateTopology checks slot uniqueness and stream references
func (c *Config) validateTopology() error {
	setIDs := make(map[string]bool, len(c.StorageSets))
	slots := make(map[string]string)

	for _, set := range c.StorageSets {
		if set.ID == "" {
			return fmt.Errorf("storage set id is required")
		}
		if setIDs[set.ID] {
			return fmt.Errorf("duplicate storage set id: %s", set.ID)
		}
		setIDs[set.ID] = true

		if set.MainDiskSlotID == "" {
			return fmt.Errorf("storage set %s: main_slot is required", set.ID)
		}
		for _, slot := range []string{set.MainDiskSlotID, set.RepDiskSlotID} {
			if slot == "" {
				continue
			}
			if owner, exists := slots[slot]; exists {
				return fmt.Errorf("slot %s used by storage sets %s and %s", slot, owner, set.ID)
			}
			slots[slot] = set.ID
		}
	}

	mimeTypes := make(map[string]bool, len(c.Streams))
	for _, stream := range c.Streams {
		if stream.MimeType == "" {
			return fmt.Errorf("stream mime_type is required")
		}
		if mimeTypes[stream.MimeType] {
			return fmt.Errorf("duplicate stream for mime-type: %s", stream.MimeType)
		}
		mimeTypes[stream.MimeType] = true

		for _, id := range stream.StorageSetIDs {
			if !setIDs[id] {
				return fmt.Errorf("stream %s references unknown storage set: %s", stream.MimeType, id)
			}
		}
	}

	return nil
}

// Validate validates metadata backend selection
func (c *MetadataConfig) Validate() error {
	switch c.Backend {
	case "etcd", "postgres", "memory":
		return nil
	default:
		return fmt.Errorf("metadata.backend must be one of: etcd, postgres, memory")
	}
}

// Validate validates etcd configuration
func (c *EtcdConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}

	return nil
}

// Validate validates PostgreSQL configuration
func (c *PostgresConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid postgres.port: %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("postgres.database is required")
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
