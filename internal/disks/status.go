package disks

import (
	"context"
	"fmt"
	"sync"

	"github.com/ngasd/ngasd/internal/inventory"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/models"
)

// diskStatusMu serializes every disk status update in the process
var diskStatusMu sync.Mutex

// StatusUpdate is the effect of one archived file on its disk
type StatusUpdate struct {
	DiskID     string
	FileExists bool // the file was already stored here; the file count is left alone
	FileSize   int64
	IOTime     float64 // seconds
}

// StatusUpdater applies post-archive updates to disk records
type StatusUpdater struct {
	gateway metadata.Gateway
	space   inventory.SpaceProber
	logger  *logging.Logger
}

// NewStatusUpdater creates a status updater
func NewStatusUpdater(gateway metadata.Gateway, space inventory.SpaceProber, logger *logging.Logger) *StatusUpdater {
	return &StatusUpdater{
		gateway: gateway,
		space:   space,
		logger:  logger.Component("disk_status"),
	}
}

// Update performs the read-modify-write of the disk counters and returns the new record
func (u *StatusUpdater) Update(ctx context.Context, upd StatusUpdate) (*models.DiskRecord, error) {
	diskStatusMu.Lock()
	defer diskStatusMu.Unlock()

	disk, err := u.gateway.ReadDisk(ctx, upd.DiskID)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk %s: %w", upd.DiskID, err)
	}

	if !upd.FileExists {
		disk.NumberOfFiles++
	}
	if mb, err := u.space.AvailableMB(disk.MountPoint); err != nil {
		u.logger.Warn("Cannot determine free space", "disk_id", disk.DiskID, "mount_point", disk.MountPoint, "error", err)
	} else {
		disk.AvailableMB = mb
	}
	disk.BytesStored += upd.FileSize
	disk.TotalIOTime += upd.IOTime

	if _, err := u.gateway.WriteDisk(ctx, disk); err != nil {
		return nil, fmt.Errorf("failed to write disk %s: %w", upd.DiskID, err)
	}

	diskStatusUpdatesTotal.Inc()
	u.logger.Debug("Updated disk status", "disk_id", disk.DiskID, "bytes_stored", disk.BytesStored,
		"number_of_files", disk.NumberOfFiles)
	return disk, nil
}
