package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ngasd")
	}

	setDefaults(v)

	// Enable environment variable overrides (NGAS_NODE_HOST_ID, ...)
	v.SetEnvPrefix("NGAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 7777)

	// Node defaults
	v.SetDefault("node.host_id", "ngas-default-host")
	v.SetDefault("node.root_dir", "/NGAS")
	v.SetDefault("node.archive_name", "NGAS")
	v.SetDefault("node.allow_archive", true)
	v.SetDefault("node.allow_remove", false)
	v.SetDefault("node.replication", true)
	v.SetDefault("node.auto_online", true)

	// Inventory defaults
	v.SetDefault("inventory.init_disk_ids", true)

	// Metadata defaults
	v.SetDefault("metadata.backend", "etcd")

	// Etcd defaults
	v.SetDefault("etcd.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")

	// Postgres defaults
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.database", "ngas")
	v.SetDefault("postgres.user", "ngas")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)

	// Queue defaults
	v.SetDefault("queue.type", "nats")
	v.SetDefault("queue.url", "nats://localhost:4222")

	// Notification defaults
	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.subject_prefix", "ngas.notify")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 7777,
		},
		Node: NodeConfig{
			HostID:       "ngas-default-host",
			RootDir:      "/NGAS",
			ArchiveName:  "NGAS",
			AllowArchive: true,
			Replication:  true,
			AutoOnline:   true,
		},
		Inventory: InventoryConfig{
			InitDiskIDs: true,
		},
		Metadata: MetadataConfig{
			Backend: "etcd",
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "ngas",
			User:     "ngas",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Queue: QueueConfig{
			Type: "nats",
			URL:  "nats://localhost:4222",
		},
		Notification: NotificationConfig{
			SubjectPrefix: "ngas.notify",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
