package registry

import (
	"context"
	"fmt"

	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/models"
)

// DiskScanner summarizes the disks mounted on this host for the registration record
type DiskScanner struct {
	gateway metadata.Gateway
	hostID  string
	rootDir string
	logger  *logging.Logger
}

// NewDiskScanner creates a new disk scanner
func NewDiskScanner(gateway metadata.Gateway, hostID, rootDir string, logger *logging.Logger) *DiskScanner {
	return &DiskScanner{
		gateway: gateway,
		hostID:  hostID,
		rootDir: rootDir,
		logger:  logger,
	}
}

// ScanDisks returns one summary per disk mounted on the host, ordered by disk id
func (s *DiskScanner) ScanDisks(ctx context.Context) ([]models.NodeDisk, error) {
	ids, err := s.gateway.MountedDiskIDs(ctx, s.hostID, s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list mounted disks: %w", err)
	}

	disks := make([]models.NodeDisk, 0, len(ids))
	for _, id := range ids {
		d, err := s.gateway.ReadDisk(ctx, id)
		if err != nil {
			// Unmounted concurrently; the next scan catches up
			s.logger.Warn("Failed to read mounted disk", "disk_id", id, "error", err)
			continue
		}
		disks = append(disks, models.NodeDisk{
			DiskID:      d.DiskID,
			LogicalName: d.LogicalName,
			SlotID:      d.SlotID,
			Completed:   d.Completed,
			AvailableMB: d.AvailableMB,
		})
	}

	s.logger.Debug("Disk scan completed", "count", len(disks))
	return disks, nil
}
