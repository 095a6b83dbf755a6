package disks

import (
	"sort"
	"strings"
	"sync"

	"github.com/ngasd/ngasd/internal/models"
)

type bestEntry struct {
	diskID string
	found  bool
}

// TargetDiskCache memoizes target disk lookups. Entries never expire; callers
// must Reset it whenever disk completion or space changes matter.
type TargetDiskCache struct {
	mu         sync.RWMutex
	candidates map[string][]*models.DiskRecord // by mime-type
	best       map[string]bestEntry            // by joined candidate ids
	disks      map[string]*models.DiskRecord   // by disk id + "_" + mime-type
}

// NewTargetDiskCache creates an empty cache
func NewTargetDiskCache() *TargetDiskCache {
	c := &TargetDiskCache{}
	c.Reset()
	return c
}

// Reset clears all three maps
func (c *TargetDiskCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = make(map[string][]*models.DiskRecord)
	c.best = make(map[string]bestEntry)
	c.disks = make(map[string]*models.DiskRecord)
}

// Len returns the number of entries per map
func (c *TargetDiskCache) Len() (candidates, best, disks int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.candidates), len(c.best), len(c.disks)
}

func (c *TargetDiskCache) getCandidates(mimeType string) ([]*models.DiskRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	recs, ok := c.candidates[mimeType]
	if !ok {
		return nil, false
	}
	return cloneRecords(recs), true
}

func (c *TargetDiskCache) setCandidates(mimeType string, recs []*models.DiskRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates[mimeType] = cloneRecords(recs)
}

func (c *TargetDiskCache) getBest(key string) (bestEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.best[key]
	return e, ok
}

func (c *TargetDiskCache) setBest(key string, e bestEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.best[key] = e
}

func (c *TargetDiskCache) getDisk(key string) (*models.DiskRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.disks[key]
	return d.Clone(), ok
}

func (c *TargetDiskCache) setDisk(key string, d *models.DiskRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disks[key] = d.Clone()
}

// candidateKey joins the sorted candidate ids
func candidateKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "_")
}

func diskKey(diskID, mimeType string) string {
	return diskID + "_" + mimeType
}

func cloneRecords(recs []*models.DiskRecord) []*models.DiskRecord {
	out := make([]*models.DiskRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
