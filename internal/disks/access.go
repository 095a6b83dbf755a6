package disks

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	accessTestFile = "NgamsTestFile"

	// DBDir and DBCacheDir are the housekeeping directories kept on every archive disk
	DBDir      = ".db"
	DBCacheDir = ".db/cache"
)

// CheckAccessibility verifies that mountPoint is writable by creating and
// removing a small test file
func CheckAccessibility(mountPoint string) error {
	p := filepath.Join(mountPoint, accessTestFile)

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDiskInaccessible, mountPoint, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDiskInaccessible, mountPoint, err)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDiskInaccessible, mountPoint, err)
	}
	return nil
}

// ensureHousekeepingDirs creates the per-disk database directories
func ensureHousekeepingDirs(mountPoint string) error {
	for _, d := range []string{DBDir, DBCacheDir} {
		if err := os.MkdirAll(filepath.Join(mountPoint, d), 0o755); err != nil {
			return fmt.Errorf("failed to create %s on %s: %w", d, mountPoint, err)
		}
	}
	return nil
}
