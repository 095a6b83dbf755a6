package models

// TargetDiskRequest asks for the best target disk for a mime-type
type TargetDiskRequest struct {
	MimeType             string   `json:"mime_type"`
	RequiredBytes        int64    `json:"required_bytes,omitempty"`
	ExemptDiskIDs        []string `json:"exempt_disk_ids,omitempty"`
	Caching              bool     `json:"caching,omitempty"`
	SuppressNotification bool     `json:"suppress_notification,omitempty"`
}

// DiskStatusRequest reports a file that was written to a disk
type DiskStatusRequest struct {
	FileExists bool    `json:"file_exists"`
	FileSize   int64   `json:"file_size"`
	IOTime     float64 `json:"io_time"`
}
