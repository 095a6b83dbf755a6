package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/models"
)

// DiskIDFile holds the disk identifier at the root of a mounted disk
const DiskIDFile = ".disk_id"

// Prober enumerates the disks physically present on this host
type Prober interface {
	Probe(ctx context.Context) (models.Inventory, error)
}

// Slot describes where a configured slot is expected to be mounted
type Slot struct {
	SlotID       string
	MountPoint   string
	Manufacturer string
	DiskType     string
}

// DirProber treats every existing slot mount directory as a present disk
type DirProber struct {
	slots   []Slot
	initIDs bool
	logger  *logging.Logger
}

// NewDirProber creates a prober for the explicit slot list
func NewDirProber(slots []Slot, initIDs bool, logger *logging.Logger) *DirProber {
	return &DirProber{
		slots:   slots,
		initIDs: initIDs,
		logger:  logger.Component("inventory"),
	}
}

// SlotsFromConfig lists the mount locations of every configured slot
func SlotsFromConfig(cfg *config.Config) []Slot {
	slots := make([]Slot, 0, 2*len(cfg.StorageSets))
	for _, set := range cfg.StorageSets {
		slots = append(slots, Slot{
			SlotID:       set.MainDiskSlotID,
			MountPoint:   cfg.SlotMountPoint(set.MainDiskSlotID),
			Manufacturer: set.MainManufacturer,
			DiskType:     set.MainDiskType,
		})
		if set.RepDiskSlotID != "" {
			slots = append(slots, Slot{
				SlotID:       set.RepDiskSlotID,
				MountPoint:   cfg.SlotMountPoint(set.RepDiskSlotID),
				Manufacturer: set.RepManufacturer,
				DiskType:     set.RepDiskType,
			})
		}
	}
	return slots
}

// Probe scans the slot mount points
func (p *DirProber) Probe(ctx context.Context) (models.Inventory, error) {
	inv := make(models.Inventory, len(p.slots))

	for _, slot := range p.slots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(slot.MountPoint)
		if err != nil || !info.IsDir() {
			p.logger.Debug("Slot empty", "slot_id", slot.SlotID, "mount_point", slot.MountPoint)
			continue
		}

		diskID, err := p.diskID(slot.MountPoint)
		if err != nil {
			p.logger.Warn("Cannot identify disk", "slot_id", slot.SlotID, "mount_point", slot.MountPoint, "error", err)
			continue
		}

		inv[slot.SlotID] = models.PhysicalDisk{
			DiskID:       diskID,
			SlotID:       slot.SlotID,
			MountPoint:   slot.MountPoint,
			Manufacturer: slot.Manufacturer,
			DiskType:     slot.DiskType,
		}
		p.logger.Debug("Disk found", "slot_id", slot.SlotID, "disk_id", diskID)
	}

	p.logger.Info("Disk inventory completed", "disks", len(inv), "slots", len(p.slots))
	return inv, nil
}

func (p *DirProber) diskID(mountPoint string) (string, error) {
	idPath := filepath.Join(mountPoint, DiskIDFile)

	data, err := os.ReadFile(idPath)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id == "" {
			return "", fmt.Errorf("empty %s", idPath)
		}
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read %s: %w", idPath, err)
	}
	if !p.initIDs {
		return "", fmt.Errorf("no %s and disk id initialization disabled", DiskIDFile)
	}

	id := uuid.New().String()
	if err := os.WriteFile(idPath, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", idPath, err)
	}
	p.logger.Info("Initialized disk id", "mount_point", mountPoint, "disk_id", id)
	return id, nil
}

// Static is a fixed inventory, used when disks are described externally
type Static models.Inventory

// Probe returns a copy of the fixed inventory
func (s Static) Probe(ctx context.Context) (models.Inventory, error) {
	return models.Inventory(s).Copy(), nil
}
