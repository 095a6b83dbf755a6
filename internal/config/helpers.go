package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDirectories ensures the mount root exists
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(c.Node.RootDir, 0755)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// GetServerAddress returns the HTTP bind address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// IsArchiveProxy reports whether archive requests may be forwarded to other units,
// in which case the local disks are not mandatory for every stream.
func (c *NodeConfig) IsArchiveProxy() bool {
	return len(c.ArchiveUnits) > 0
}

// SlotMountPoint returns the configured mount point for a slot, or "" if the slot is unknown
func (c *Config) SlotMountPoint(slotID string) string {
	for _, set := range c.StorageSets {
		switch slotID {
		case set.MainDiskSlotID:
			return filepath.Join(c.Node.RootDir, orDefault(set.MainMountDir, slotID))
		case set.RepDiskSlotID:
			if slotID == "" {
				continue
			}
			return filepath.Join(c.Node.RootDir, orDefault(set.RepMountDir, slotID))
		}
	}
	return ""
}

// DatabaseDSN builds the PostgreSQL connection string
func (c *PostgresConfig) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// MigrateURL builds the golang-migrate URL for the pgx/v5 driver
func (c *PostgresConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
