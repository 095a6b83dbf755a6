package metadata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ngasd/ngasd/internal/models"
)

type fileKey struct {
	diskID  string
	fileID  string
	version int
}

// MemoryGateway is an in-process Gateway used by tests and single-node setups
type MemoryGateway struct {
	mu      sync.RWMutex
	disks   map[string]*models.DiskRecord
	files   map[fileKey]*models.FileRecord
	history []models.DiskHistoryEntry
}

// NewMemoryGateway creates an empty in-memory gateway
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		disks: make(map[string]*models.DiskRecord),
		files: make(map[fileKey]*models.FileRecord),
	}
}

func (g *MemoryGateway) MountedDiskIDs(ctx context.Context, hostID, rootDir string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0)
	for id, d := range g.disks {
		if d.Mounted && d.HostID == hostID && underRoot(d.MountPoint, rootDir) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *MemoryGateway) ReadDisk(ctx context.Context, diskID string) (*models.DiskRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	d, ok := g.disks[diskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDiskNotFound, diskID)
	}
	return d.Clone(), nil
}

func (g *MemoryGateway) WriteDisk(ctx context.Context, disk *models.DiskRecord) (bool, error) {
	if disk == nil || disk.DiskID == "" {
		return false, fmt.Errorf("disk id is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	_, exists := g.disks[disk.DiskID]
	g.disks[disk.DiskID] = disk.Clone()
	return !exists, nil
}

func (g *MemoryGateway) DiskExists(ctx context.Context, diskID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.disks[diskID]
	return ok, nil
}

func (g *MemoryGateway) ListDisks(ctx context.Context) ([]*models.DiskRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*models.DiskRecord, 0, len(g.disks))
	for _, d := range g.disks {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiskID < out[j].DiskID })
	return out, nil
}

func (g *MemoryGateway) SumBytesStored(ctx context.Context, diskID string) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sum int64
	for k, f := range g.files {
		if k.diskID == diskID && !f.Ignore {
			sum += f.FileSize
		}
	}
	return sum, nil
}

func (g *MemoryGateway) CountFiles(ctx context.Context, diskID string) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var n int64
	for k, f := range g.files {
		if k.diskID == diskID && !f.Ignore {
			n++
		}
	}
	return n, nil
}

func (g *MemoryGateway) MaxDiskSequenceNumber(ctx context.Context) (int, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	max, found := 0, false
	for _, d := range g.disks {
		if n, ok := SequenceNumber(d.LogicalName); ok && (!found || n > max) {
			max, found = n, true
		}
	}
	return max, found, nil
}

func (g *MemoryGateway) DiskIDForSlot(ctx context.Context, hostID, slotID string) (string, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, d := range g.disks {
		if d.HostID == hostID && d.SlotID == slotID {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (g *MemoryGateway) LogicalNameForDisk(ctx context.Context, diskID string) (string, error) {
	d, err := g.ReadDisk(ctx, diskID)
	if err != nil {
		return "", err
	}
	return d.LogicalName, nil
}

func (g *MemoryGateway) DiskInfoForSlots(ctx context.Context, hostID string, slotIDs []string) ([]*models.DiskRecord, error) {
	wanted := make(map[string]bool, len(slotIDs))
	for _, s := range slotIDs {
		wanted[s] = true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*models.DiskRecord, 0)
	for _, d := range g.disks {
		if d.HostID == hostID && wanted[d.SlotID] {
			out = append(out, d.Clone())
		}
	}
	sortRecordsBySlot(out)
	return out, nil
}

func (g *MemoryGateway) BestTargetDisk(ctx context.Context, candidates []string, rootDir string) (string, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	records := make([]*models.DiskRecord, 0, len(candidates))
	for _, id := range candidates {
		if d, ok := g.disks[id]; ok {
			records = append(records, d)
		}
	}
	id, ok := bestOf(records, rootDir)
	return id, ok, nil
}

func (g *MemoryGateway) AddDiskHistoryEntry(ctx context.Context, entry models.DiskHistoryEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.history = append(g.history, entry)
	return nil
}

// History returns the recorded history entries for a disk
func (g *MemoryGateway) History(diskID string) []models.DiskHistoryEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []models.DiskHistoryEntry
	for _, h := range g.history {
		if h.DiskID == diskID {
			out = append(out, h)
		}
	}
	return out
}

func (g *MemoryGateway) RegisterFile(ctx context.Context, file *models.FileRecord) error {
	if file == nil || file.DiskID == "" || file.FileID == "" {
		return fmt.Errorf("disk id and file id are required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cp := *file
	g.files[fileKey{file.DiskID, file.FileID, file.FileVersion}] = &cp
	return nil
}

func (g *MemoryGateway) Close() error {
	return nil
}
