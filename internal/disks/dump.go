package disks

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngasd/ngasd/internal/diskinfo"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/notification"
)

const missingDiskSubject = "MISSING DISK IN DB"

// Dumper writes the NgasDiskInfo marker files of mounted disks
type Dumper struct {
	gateway  metadata.Gateway
	notifier notification.Notifier
	rootDir  string
	logger   *logging.Logger
}

// NewDumper creates a marker file dumper
func NewDumper(gateway metadata.Gateway, notifier notification.Notifier, rootDir string, logger *logging.Logger) *Dumper {
	return &Dumper{
		gateway:  gateway,
		notifier: notifier,
		rootDir:  rootDir,
		logger:   logger.Component("disk_dump"),
	}
}

// DumpDiskInfo writes the current record of diskID to the marker file at
// mountPoint. It returns nil without writing when the disk is missing from
// the metadata store or the existing marker is read-only.
func (d *Dumper) DumpDiskInfo(ctx context.Context, hostID, diskID, mountPoint string) (*diskinfo.Document, error) {
	disk, err := d.gateway.ReadDisk(ctx, diskID)
	if errors.Is(err, metadata.ErrDiskNotFound) {
		msg := fmt.Sprintf("Cannot dump status of disk %s: disk not found in DB", diskID)
		d.logger.Error(msg, "disk_id", diskID)
		notify(ctx, d.notifier, d.logger, notification.Event{
			Type:    notification.TypeError,
			Subject: missingDiskSubject,
			Body:    msg,
			HostID:  hostID,
		})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read disk %s: %w", diskID, err)
	}

	if !diskinfo.Writable(mountPoint) {
		d.logger.Debug("Disk info file not writable, skipping", "disk_id", diskID, "mount_point", mountPoint)
		return nil, nil
	}

	doc := diskinfo.NewDocument(hostID, disk, "")
	if err := diskinfo.Write(mountPoint, doc); err != nil {
		return nil, err
	}
	d.logger.Debug("Dumped disk info", "disk_id", diskID, "path", diskinfo.Path(mountPoint))
	return doc, nil
}

// DumpAllDisks dumps the marker file of every disk mounted on hostID
func (d *Dumper) DumpAllDisks(ctx context.Context, hostID string) error {
	ids, err := d.gateway.MountedDiskIDs(ctx, hostID, d.rootDir)
	if err != nil {
		return fmt.Errorf("failed to list mounted disks: %w", err)
	}

	for _, id := range ids {
		disk, err := d.gateway.ReadDisk(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read disk %s: %w", id, err)
		}
		if _, err := d.DumpDiskInfo(ctx, hostID, id, disk.MountPoint); err != nil {
			return err
		}
	}
	return nil
}
