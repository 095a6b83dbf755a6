package inventory

import (
	"fmt"
	"syscall"
)

// SpaceProber reports free space on a mount point
type SpaceProber interface {
	AvailableMB(mountPoint string) (int64, error)
}

// StatfsSpace reads free space with statfs(2)
type StatfsSpace struct{}

// AvailableMB returns the space available to unprivileged users, in MB
func (StatfsSpace) AvailableMB(mountPoint string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(mountPoint, &stat); err != nil {
		return 0, fmt.Errorf("failed to stat filesystem %s: %w", mountPoint, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize) / (1024 * 1024), nil
}

// FixedSpace returns preset values per mount point; unknown mount points report Default
type FixedSpace struct {
	ByMount map[string]int64
	Default int64
}

// AvailableMB implements SpaceProber
func (f FixedSpace) AvailableMB(mountPoint string) (int64, error) {
	if v, ok := f.ByMount[mountPoint]; ok {
		return v, nil
	}
	return f.Default, nil
}
