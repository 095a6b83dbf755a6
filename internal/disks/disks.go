// Package disks implements the disk allocation core of an archive node:
// reconciliation of physical disks against the metadata store at Online
// time, target disk selection for incoming files and post-archive disk
// status updates.
package disks

import (
	"context"

	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/notification"
)

// Settings are the node flags the disk core depends on
type Settings struct {
	RootDir      string
	ArchiveName  string
	AllowArchive bool
	AllowRemove  bool
	Replication  bool
	ArchiveProxy bool
}

// SettingsFromConfig extracts the disk core settings from the node configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		RootDir:      cfg.Node.RootDir,
		ArchiveName:  cfg.Node.ArchiveName,
		AllowArchive: cfg.Node.AllowArchive,
		AllowRemove:  cfg.Node.AllowRemove,
		Replication:  cfg.Node.Replication,
		ArchiveProxy: cfg.Node.IsArchiveProxy(),
	}
}

// notify sends an event; delivery failures are logged and never abort the caller
func notify(ctx context.Context, n notification.Notifier, logger *logging.Logger, ev notification.Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, ev); err != nil {
		logger.Warn("Failed to send notification", "subject", ev.Subject, "error", err)
	}
}
