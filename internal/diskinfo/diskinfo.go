// Package diskinfo reads and writes the NgasDiskInfo marker file kept at the
// root of every archive disk. The marker carries a snapshot of the disk record
// so a disk can be recognized again when the metadata store has no (or an
// older) record for it.
package diskinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ngasd/ngasd/internal/models"
)

// FileName is the marker file name below the mount point
const FileName = "NgasDiskInfo"

// Version is stamped into every marker document
const Version = "ngasd/1"

// maxFileSize guards against reading something that is clearly not a marker
const maxFileSize = 1 << 20

// Document is the marker file content
type Document struct {
	Version string             `json:"version"`
	Date    time.Time          `json:"date"`
	HostID  string             `json:"host_id"`
	Message string             `json:"message,omitempty"`
	Disk    *models.DiskRecord `json:"disk"`
}

// NewDocument wraps a disk record for dumping
func NewDocument(hostID string, disk *models.DiskRecord, message string) *Document {
	return &Document{
		Version: Version,
		Date:    time.Now().UTC(),
		HostID:  hostID,
		Message: message,
		Disk:    disk.Clone(),
	}
}

// Path returns the marker file path for a mount point
func Path(mountPoint string) string {
	return filepath.Join(mountPoint, FileName)
}

// Exists reports whether a marker file is present at mountPoint
func Exists(mountPoint string) bool {
	info, err := os.Stat(Path(mountPoint))
	return err == nil && info.Mode().IsRegular()
}

// Writable reports whether the marker at mountPoint may be overwritten;
// a missing marker counts as writable.
func Writable(mountPoint string) bool {
	info, err := os.Stat(Path(mountPoint))
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o200 != 0
}

// Encode serializes the document
func Encode(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal disk info: %w", err)
	}
	return data, nil
}

// Decode parses a marker document and checks it carries a disk record
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal disk info: %w", err)
	}
	if doc.Disk == nil || doc.Disk.DiskID == "" {
		return nil, fmt.Errorf("disk info carries no disk record")
	}
	return &doc, nil
}

// Read loads the marker at mountPoint. A missing file yields an error
// matching os.ErrNotExist.
func Read(mountPoint string) (*Document, error) {
	p := Path(mountPoint)

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat disk info %s: %w", p, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("disk info %s too large (%d bytes)", p, info.Size())
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk info %s: %w", p, err)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return doc, nil
}

// Write stores the document atomically: temp file, fsync, rename
func Write(mountPoint string, doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	p := Path(mountPoint)
	tmpPath := p + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp disk info: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write disk info: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync disk info: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close disk info: %w", err)
	}

	if err := os.Rename(tmpPath, p); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename disk info: %w", err)
	}

	return nil
}
