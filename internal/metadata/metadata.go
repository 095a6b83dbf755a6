package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ngasd/ngasd/internal/models"
)

// ErrDiskNotFound is returned when a disk has no record in the metadata store
var ErrDiskNotFound = errors.New("disk not found")

// Gateway is the persistence layer for disk and file metadata
type Gateway interface {
	// Disk records
	MountedDiskIDs(ctx context.Context, hostID, rootDir string) ([]string, error)
	ReadDisk(ctx context.Context, diskID string) (*models.DiskRecord, error)
	WriteDisk(ctx context.Context, disk *models.DiskRecord) (bool, error) // true if newly inserted
	DiskExists(ctx context.Context, diskID string) (bool, error)
	ListDisks(ctx context.Context) ([]*models.DiskRecord, error)

	// Derived statistics
	SumBytesStored(ctx context.Context, diskID string) (int64, error)
	CountFiles(ctx context.Context, diskID string) (int64, error)
	MaxDiskSequenceNumber(ctx context.Context) (int, bool, error)

	// Slot lookups
	DiskIDForSlot(ctx context.Context, hostID, slotID string) (string, bool, error)
	LogicalNameForDisk(ctx context.Context, diskID string) (string, error)
	DiskInfoForSlots(ctx context.Context, hostID string, slotIDs []string) ([]*models.DiskRecord, error)

	// Target ranking
	BestTargetDisk(ctx context.Context, candidates []string, rootDir string) (string, bool, error)

	// History and files
	AddDiskHistoryEntry(ctx context.Context, entry models.DiskHistoryEntry) error
	RegisterFile(ctx context.Context, file *models.FileRecord) error

	// Lifecycle
	Close() error
}

// SequenceNumber extracts the numeric suffix of a logical name such as "Fits-M-000004"
func SequenceNumber(logicalName string) (int, bool) {
	idx := strings.LastIndex(logicalName, "-")
	if idx < 0 || idx == len(logicalName)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(logicalName[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// underRoot reports whether mountPoint lies below rootDir
func underRoot(mountPoint, rootDir string) bool {
	if rootDir == "" {
		return true
	}
	if mountPoint == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(rootDir), filepath.Clean(mountPoint))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

// rankTargetDisks orders eligible candidates by the target ranking policy:
// lowest logical-name sequence first (fill disks in installation order),
// then most available space, then disk id.
func rankTargetDisks(records []*models.DiskRecord, rootDir string) []*models.DiskRecord {
	eligible := make([]*models.DiskRecord, 0, len(records))
	for _, r := range records {
		if r == nil || !r.Mounted || r.Completed || !underRoot(r.MountPoint, rootDir) {
			continue
		}
		eligible = append(eligible, r)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		sa, okA := SequenceNumber(a.LogicalName)
		sb, okB := SequenceNumber(b.LogicalName)
		if okA != okB {
			return okA
		}
		if sa != sb {
			return sa < sb
		}
		if a.AvailableMB != b.AvailableMB {
			return a.AvailableMB > b.AvailableMB
		}
		return a.DiskID < b.DiskID
	})
	return eligible
}

// bestOf applies the ranking policy and returns the winner's id
func bestOf(records []*models.DiskRecord, rootDir string) (string, bool) {
	ranked := rankTargetDisks(records, rootDir)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].DiskID, true
}

func sortRecordsBySlot(records []*models.DiskRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].SlotID != records[j].SlotID {
			return records[i].SlotID < records[j].SlotID
		}
		return records[i].DiskID < records[j].DiskID
	})
}
