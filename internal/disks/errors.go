package disks

import "errors"

var (
	// ErrIllegalLogicalName is returned when a disk's logical name carries no role token
	ErrIllegalLogicalName = errors.New("illegal logical name")

	// ErrNoStorageSets is returned when no target disk can be found for a mime-type
	ErrNoStorageSets = errors.New("no storage sets (disks) available for mime-type")

	// ErrDiskInaccessible is returned by the accessibility probe
	ErrDiskInaccessible = errors.New("disk inaccessible")

	// ErrUnknownSlot is returned for slot ids absent from the storage set configuration
	ErrUnknownSlot = errors.New("unknown slot")
)
