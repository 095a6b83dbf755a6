package models

import "time"

// NodeInfo is the registration record an archive node publishes in etcd
type NodeInfo struct {
	HostID    string     `json:"host_id"`
	Address   string     `json:"address"` // host:port of the admin HTTP server
	State     string     `json:"state"`   // ONLINE, OFFLINE
	Version   string     `json:"version"`
	Disks     []NodeDisk `json:"disks"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NodeDisk summarizes one mounted disk of a registered node
type NodeDisk struct {
	DiskID      string `json:"disk_id"`
	LogicalName string `json:"logical_name"`
	SlotID      string `json:"slot_id"`
	Completed   bool   `json:"completed"`
	AvailableMB int64  `json:"available_mb"`
}
