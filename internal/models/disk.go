package models

import (
	"sort"
	"time"
)

// DiskRecord represents one physical disk known to the archive
type DiskRecord struct {
	DiskID           string    `json:"disk_id"`
	LogicalName      string    `json:"logical_name"`
	HostID           string    `json:"host_id"`     // Empty when unmounted
	SlotID           string    `json:"slot_id"`     // Empty when unmounted
	MountPoint       string    `json:"mount_point"` // Empty when unmounted
	Mounted          bool      `json:"mounted"`
	Completed        bool      `json:"completed"`
	AvailableMB      int64     `json:"available_mb"`
	BytesStored      int64     `json:"bytes_stored"`
	NumberOfFiles    int64     `json:"number_of_files"`
	TotalIOTime      float64   `json:"total_io_time"` // Seconds
	InstallationDate time.Time `json:"installation_date"`
	ArchiveName      string    `json:"archive_name"`
	Manufacturer     string    `json:"manufacturer"`
	DiskType         string    `json:"disk_type"`
	Checksum         string    `json:"checksum,omitempty"`
	LastHostID       string    `json:"last_host_id"`
	CompletionDate   time.Time `json:"completion_date,omitempty"`
}

// Clone returns a copy that can be mutated independently
func (d *DiskRecord) Clone() *DiskRecord {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// MarkUnmounted clears the placement fields of a disk no longer present on hostID
func (d *DiskRecord) MarkUnmounted(hostID string) {
	d.HostID = ""
	d.SlotID = ""
	d.MountPoint = ""
	d.Mounted = false
	d.LastHostID = hostID
}

// DiskHistoryEntry is an audit event recorded against a disk
type DiskHistoryEntry struct {
	HostID      string    `json:"host_id"`
	DiskID      string    `json:"disk_id"`
	Date        time.Time `json:"date"`
	Synopsis    string    `json:"synopsis"`
	ContentType string    `json:"content_type,omitempty"`
	Content     []byte    `json:"content,omitempty"`
}

// FileRecord is a file archived onto a disk
type FileRecord struct {
	DiskID        string    `json:"disk_id"`
	FileID        string    `json:"file_id"`
	FileVersion   int       `json:"file_version"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	MimeType      string    `json:"mime_type"`
	IngestionDate time.Time `json:"ingestion_date"`
	// Ignore excludes the file from disk statistics
	Ignore bool `json:"ignore"`
}

// PhysicalDisk describes a disk currently seen in a slot by the hardware probe
type PhysicalDisk struct {
	DiskID       string `json:"disk_id"`
	SlotID       string `json:"slot_id"`
	MountPoint   string `json:"mount_point"`
	Manufacturer string `json:"manufacturer"`
	DiskType     string `json:"disk_type"`
}

// Inventory maps slot ID to the disk physically present in it
type Inventory map[string]PhysicalDisk

// SlotIDs returns the slot IDs in sorted order
func (inv Inventory) SlotIDs() []string {
	ids := make([]string, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SlotForDisk returns the slot holding diskID
func (inv Inventory) SlotForDisk(diskID string) (string, bool) {
	for slotID, disk := range inv {
		if disk.DiskID == diskID {
			return slotID, true
		}
	}
	return "", false
}

// Copy returns a shallow copy of the inventory
func (inv Inventory) Copy() Inventory {
	cp := make(Inventory, len(inv))
	for k, v := range inv {
		cp[k] = v
	}
	return cp
}
