package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/ngasd/ngasd/internal/models"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	diskPrefix    = "/ngas/disks"
	filePrefix    = "/ngas/files"
	historyPrefix = "/ngas/history"
)

// EtcdGateway implements Gateway on top of etcd
type EtcdGateway struct {
	client *clientv3.Client
	names  *KVCache // disk id -> logical name
}

// EtcdOptions configures the etcd connection
type EtcdOptions struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

// NewEtcdGateway connects to etcd and returns a gateway
func NewEtcdGateway(opts EtcdOptions) (*EtcdGateway, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
		Username:    opts.Username,
		Password:    opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return NewEtcdGatewayWithClient(client), nil
}

// NewEtcdGatewayWithClient wraps an existing client
func NewEtcdGatewayWithClient(client *clientv3.Client) *EtcdGateway {
	return &EtcdGateway{
		client: client,
		names:  NewKVCache(5 * time.Minute),
	}
}

// Client exposes the underlying etcd client for node registration
func (g *EtcdGateway) Client() *clientv3.Client {
	return g.client
}

func diskKey(diskID string) string {
	return path.Join(diskPrefix, diskID)
}

func fileKeyPath(diskID, fileID string, version int) string {
	return path.Join(filePrefix, diskID, fileID, fmt.Sprintf("%d", version))
}

// ============================================================================
// Disk Operations
// ============================================================================

func (g *EtcdGateway) loadDisks(ctx context.Context) ([]*models.DiskRecord, error) {
	resp, err := g.client.Get(ctx, diskPrefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list disks from etcd: %w", err)
	}

	disks := make([]*models.DiskRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var d models.DiskRecord
		if err := json.Unmarshal(kv.Value, &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal disk %s: %w", kv.Key, err)
		}
		disks = append(disks, &d)
	}
	return disks, nil
}

func (g *EtcdGateway) MountedDiskIDs(ctx context.Context, hostID, rootDir string) ([]string, error) {
	disks, err := g.loadDisks(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	for _, d := range disks {
		if d.Mounted && d.HostID == hostID && underRoot(d.MountPoint, rootDir) {
			ids = append(ids, d.DiskID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *EtcdGateway) ReadDisk(ctx context.Context, diskID string) (*models.DiskRecord, error) {
	resp, err := g.client.Get(ctx, diskKey(diskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get disk from etcd: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDiskNotFound, diskID)
	}

	var d models.DiskRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal disk: %w", err)
	}
	return &d, nil
}

// WriteDisk upserts the record; the transaction reports whether the key was new
func (g *EtcdGateway) WriteDisk(ctx context.Context, disk *models.DiskRecord) (bool, error) {
	if disk == nil || disk.DiskID == "" {
		return false, fmt.Errorf("disk id is required")
	}

	data, err := json.Marshal(disk)
	if err != nil {
		return false, fmt.Errorf("failed to marshal disk: %w", err)
	}

	key := diskKey(disk.DiskID)
	resp, err := g.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Version(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data))).
		Else(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return false, fmt.Errorf("failed to store disk in etcd: %w", err)
	}

	g.names.Set(key, disk.LogicalName)
	return resp.Succeeded, nil
}

func (g *EtcdGateway) DiskExists(ctx context.Context, diskID string) (bool, error) {
	resp, err := g.client.Get(ctx, diskKey(diskID), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("failed to check disk existence: %w", err)
	}
	return resp.Count > 0, nil
}

func (g *EtcdGateway) ListDisks(ctx context.Context) ([]*models.DiskRecord, error) {
	disks, err := g.loadDisks(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(disks, func(i, j int) bool { return disks[i].DiskID < disks[j].DiskID })
	return disks, nil
}

// ============================================================================
// Derived Statistics
// ============================================================================

func (g *EtcdGateway) diskFiles(ctx context.Context, diskID string) ([]models.FileRecord, error) {
	resp, err := g.client.Get(ctx, path.Join(filePrefix, diskID)+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list files for disk %s: %w", diskID, err)
	}

	files := make([]models.FileRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var f models.FileRecord
		if err := json.Unmarshal(kv.Value, &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file %s: %w", kv.Key, err)
		}
		if !f.Ignore {
			files = append(files, f)
		}
	}
	return files, nil
}

func (g *EtcdGateway) SumBytesStored(ctx context.Context, diskID string) (int64, error) {
	files, err := g.diskFiles(ctx, diskID)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, f := range files {
		sum += f.FileSize
	}
	return sum, nil
}

func (g *EtcdGateway) CountFiles(ctx context.Context, diskID string) (int64, error) {
	files, err := g.diskFiles(ctx, diskID)
	if err != nil {
		return 0, err
	}
	return int64(len(files)), nil
}

func (g *EtcdGateway) MaxDiskSequenceNumber(ctx context.Context) (int, bool, error) {
	disks, err := g.loadDisks(ctx)
	if err != nil {
		return 0, false, err
	}

	max, found := 0, false
	for _, d := range disks {
		if n, ok := SequenceNumber(d.LogicalName); ok && (!found || n > max) {
			max, found = n, true
		}
	}
	return max, found, nil
}

// ============================================================================
// Slot Lookups
// ============================================================================

func (g *EtcdGateway) DiskIDForSlot(ctx context.Context, hostID, slotID string) (string, bool, error) {
	disks, err := g.loadDisks(ctx)
	if err != nil {
		return "", false, err
	}
	for _, d := range disks {
		if d.HostID == hostID && d.SlotID == slotID {
			return d.DiskID, true, nil
		}
	}
	return "", false, nil
}

func (g *EtcdGateway) LogicalNameForDisk(ctx context.Context, diskID string) (string, error) {
	key := diskKey(diskID)
	if name, ok := g.names.Get(key); ok {
		return name, nil
	}

	d, err := g.ReadDisk(ctx, diskID)
	if err != nil {
		return "", err
	}
	g.names.Set(key, d.LogicalName)
	return d.LogicalName, nil
}

func (g *EtcdGateway) DiskInfoForSlots(ctx context.Context, hostID string, slotIDs []string) ([]*models.DiskRecord, error) {
	disks, err := g.loadDisks(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(slotIDs))
	for _, s := range slotIDs {
		wanted[s] = true
	}

	out := make([]*models.DiskRecord, 0)
	for _, d := range disks {
		if d.HostID == hostID && wanted[d.SlotID] {
			out = append(out, d)
		}
	}
	sortRecordsBySlot(out)
	return out, nil
}

func (g *EtcdGateway) BestTargetDisk(ctx context.Context, candidates []string, rootDir string) (string, bool, error) {
	if len(candidates) == 0 {
		return "", false, nil
	}

	ops := make([]clientv3.Op, 0, len(candidates))
	for _, id := range candidates {
		ops = append(ops, clientv3.OpGet(diskKey(id)))
	}
	resp, err := g.client.Txn(ctx).Then(ops...).Commit()
	if err != nil {
		return "", false, fmt.Errorf("failed to read candidate disks: %w", err)
	}

	records := make([]*models.DiskRecord, 0, len(candidates))
	for _, r := range resp.Responses {
		for _, kv := range r.GetResponseRange().Kvs {
			var d models.DiskRecord
			if err := json.Unmarshal(kv.Value, &d); err != nil {
				return "", false, fmt.Errorf("failed to unmarshal disk %s: %w", kv.Key, err)
			}
			records = append(records, &d)
		}
	}

	id, ok := bestOf(records, rootDir)
	return id, ok, nil
}

// ============================================================================
// History and Files
// ============================================================================

// AddDiskHistoryEntry stores the entry snappy-compressed under the disk's history prefix
func (g *EtcdGateway) AddDiskHistoryEntry(ctx context.Context, entry models.DiskHistoryEntry) error {
	if entry.Date.IsZero() {
		entry.Date = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	key := path.Join(historyPrefix, entry.DiskID, fmt.Sprintf("%020d", entry.Date.UnixNano()))
	if _, err := g.client.Put(ctx, key, string(snappy.Encode(nil, data))); err != nil {
		return fmt.Errorf("failed to store history entry: %w", err)
	}
	return nil
}

// DiskHistory returns the history of a disk in chronological order
func (g *EtcdGateway) DiskHistory(ctx context.Context, diskID string) ([]models.DiskHistoryEntry, error) {
	resp, err := g.client.Get(ctx, path.Join(historyPrefix, diskID)+"/",
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to get disk history: %w", err)
	}

	entries := make([]models.DiskHistoryEntry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		raw, err := snappy.Decode(nil, kv.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress history entry %s: %w", kv.Key, err)
		}
		var e models.DiskHistoryEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (g *EtcdGateway) RegisterFile(ctx context.Context, file *models.FileRecord) error {
	if file == nil || file.DiskID == "" || file.FileID == "" {
		return fmt.Errorf("disk id and file id are required")
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal file: %w", err)
	}

	if _, err := g.client.Put(ctx, fileKeyPath(file.DiskID, file.FileID, file.FileVersion), string(data)); err != nil {
		return fmt.Errorf("failed to store file in etcd: %w", err)
	}
	return nil
}

// ============================================================================
// Lifecycle
// ============================================================================

func (g *EtcdGateway) Close() error {
	g.names.Stop()
	return g.client.Close()
}
