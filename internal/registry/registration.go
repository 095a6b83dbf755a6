package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/models"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	nodePrefix = "/ngas/nodes"

	defaultLeaseTTL        = 10 // seconds
	defaultRefreshInterval = 30 * time.Second
)

// NodeKey returns the etcd key of a node registration
func NodeKey(hostID string) string {
	return path.Join(nodePrefix, hostID)
}

// NodeRegistration publishes this node in etcd under a lease kept alive
// while the node is Online
type NodeRegistration struct {
	etcdClient *clientv3.Client
	scanner    *DiskScanner
	logger     *logging.Logger

	leaseTTL        int64
	refreshInterval time.Duration

	mu       sync.Mutex
	leaseID  clientv3.LeaseID
	nodeInfo models.NodeInfo
	stop     context.CancelFunc
	done     chan struct{}
}

// NewNodeRegistration creates a new node registration instance
func NewNodeRegistration(
	etcdClient *clientv3.Client,
	nodeInfo models.NodeInfo,
	scanner *DiskScanner,
	logger *logging.Logger,
) *NodeRegistration {
	return &NodeRegistration{
		etcdClient:      etcdClient,
		nodeInfo:        nodeInfo,
		scanner:         scanner,
		logger:          logger.Component("registry"),
		leaseTTL:        defaultLeaseTTL,
		refreshInterval: defaultRefreshInterval,
	}
}

// NodeInfo returns a copy of the last published record
func (r *NodeRegistration) NodeInfo() models.NodeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := r.nodeInfo
	info.Disks = append([]models.NodeDisk(nil), r.nodeInfo.Disks...)
	return info
}

// Register publishes the node record and starts the keep-alive loop.
// Registering an already registered node refreshes its record.
func (r *NodeRegistration) Register(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.leaseID != 0 {
		return r.publishLocked(ctx)
	}

	r.logger.Info("Starting node registration", "host_id", r.nodeInfo.HostID)

	lease, err := r.etcdClient.Grant(ctx, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	r.leaseID = lease.ID
	r.logger.Info("Lease created", "lease_id", int64(r.leaseID), "ttl", r.leaseTTL)

	if err := r.publishLocked(ctx); err != nil {
		_, _ = r.etcdClient.Revoke(ctx, r.leaseID)
		r.leaseID = 0
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.etcdClient.KeepAlive(loopCtx, r.leaseID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}
	r.stop = cancel
	r.done = make(chan struct{})
	go r.keepAlive(loopCtx, ch, r.done)

	r.logger.Info("Node registered successfully",
		"host_id", r.nodeInfo.HostID,
		"address", r.nodeInfo.Address,
		"state", r.nodeInfo.State,
		"disks", len(r.nodeInfo.Disks),
	)
	return nil
}

// publishLocked rescans the disks and writes the node record under the lease
func (r *NodeRegistration) publishLocked(ctx context.Context) error {
	disks, err := r.scanner.ScanDisks(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan disks: %w", err)
	}
	r.nodeInfo.Disks = disks
	r.nodeInfo.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(r.nodeInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal node info: %w", err)
	}

	if _, err := r.etcdClient.Put(ctx, NodeKey(r.nodeInfo.HostID), string(data), clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}
	return nil
}

// keepAlive drains lease heartbeats and refreshes the disk summary periodically
func (r *NodeRegistration) keepAlive(ctx context.Context, ch <-chan *clientv3.LeaseKeepAliveResponse, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Keep-alive stopped")
			return

		case ka, ok := <-ch:
			if !ok {
				r.logger.Warn("Keep-alive channel closed, node registration lost")
				r.mu.Lock()
				r.leaseID = 0
				r.mu.Unlock()
				return
			}
			if ka != nil {
				r.logger.Debug("Heartbeat sent", "lease_id", int64(ka.ID), "ttl", ka.TTL)
			}

		case <-ticker.C:
			r.mu.Lock()
			err := r.publishLocked(ctx)
			r.mu.Unlock()
			if err != nil {
				r.logger.Error("Failed to refresh node record", "error", err)
			}
		}
	}
}

// SetState updates the advertised node state and republishes when registered
func (r *NodeRegistration) SetState(ctx context.Context, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodeInfo.State = state
	if r.leaseID == 0 {
		return nil
	}
	return r.publishLocked(ctx)
}

// Deregister stops the keep-alive loop, removes the node key and revokes the lease
func (r *NodeRegistration) Deregister(ctx context.Context) error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("Deregistering node", "host_id", r.nodeInfo.HostID)

	_, err := r.etcdClient.Delete(ctx, NodeKey(r.nodeInfo.HostID))
	if err != nil {
		r.logger.Error("Failed to delete node key", "error", err)
	}

	if r.leaseID != 0 {
		if _, rerr := r.etcdClient.Revoke(ctx, r.leaseID); rerr != nil {
			r.logger.Error("Failed to revoke lease", "error", rerr)
		}
		r.leaseID = 0
	}

	return err
}

// ListNodes returns every registered node
func ListNodes(ctx context.Context, client *clientv3.Client) ([]models.NodeInfo, error) {
	resp, err := client.Get(ctx, nodePrefix+"/", clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := make([]models.NodeInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info models.NodeInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node %s: %w", kv.Key, err)
		}
		nodes = append(nodes, info)
	}
	return nodes, nil
}
