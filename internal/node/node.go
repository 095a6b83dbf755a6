// Package node drives the Offline/Online life cycle of an archive node.
//
// Going Online probes the disk inventory, reconciles it with the metadata
// store, dumps the marker files, resets the target disk cache and registers
// the node. Going Offline dumps the marker files, marks every local disk as
// unmounted and deregisters. Target selection and status updates are only
// served while Online.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ngasd/ngasd/internal/disks"
	"github.com/ngasd/ngasd/internal/inventory"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/models"
)

// State is the node life cycle state
type State string

const (
	StateOffline State = "OFFLINE"
	StateOnline  State = "ONLINE"
)

// ErrNotOnline is returned for requests that need an Online node
var ErrNotOnline = errors.New("node is not online")

// Registrar publishes the node to the rest of the cluster
type Registrar interface {
	SetState(ctx context.Context, state string) error
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

// Options wires a Node
type Options struct {
	HostID     string
	Prober     inventory.Prober
	Reconciler *disks.Reconciler
	Selector   *disks.Selector
	Status     *disks.StatusUpdater
	Dumper     *disks.Dumper
	Registrar  Registrar // optional
	Logger     *logging.Logger
}

// Node holds the node state and serializes transitions
type Node struct {
	hostID     string
	prober     inventory.Prober
	reconciler *disks.Reconciler
	selector   *disks.Selector
	status     *disks.StatusUpdater
	dumper     *disks.Dumper
	registrar  Registrar
	logger     *logging.Logger

	transition sync.Mutex // held for the whole Online/Offline sequence

	mu      sync.RWMutex
	state   State
	last    *disks.ReconcileResult
	lastDur time.Duration
}

// New creates an Offline node
func New(opts Options) *Node {
	return &Node{
		hostID:     opts.HostID,
		prober:     opts.Prober,
		reconciler: opts.Reconciler,
		selector:   opts.Selector,
		status:     opts.Status,
		dumper:     opts.Dumper,
		registrar:  opts.Registrar,
		logger:     opts.Logger.Component("node").With("host_id", opts.HostID),
		state:      StateOffline,
	}
}

// HostID returns the node host id
func (n *Node) HostID() string {
	return n.hostID
}

// State returns the current state
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// LastResult returns the outcome of the last reconciliation, nil before the first Online
func (n *Node) LastResult() *disks.ReconcileResult {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.last
}

// Online reconciles the local disks and brings the node Online. Calling it
// on an Online node runs the reconciliation again.
func (n *Node) Online(ctx context.Context) (*disks.ReconcileResult, error) {
	n.transition.Lock()
	defer n.transition.Unlock()

	start := time.Now()
	n.logger.Info("Going Online")

	inv, err := n.prober.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to probe disk inventory: %w", err)
	}

	res, err := n.reconciler.Reconcile(ctx, n.hostID, inv)
	if err != nil {
		return nil, fmt.Errorf("disk reconciliation failed: %w", err)
	}

	if err := n.dumper.DumpAllDisks(ctx, n.hostID); err != nil {
		return nil, fmt.Errorf("failed to dump disk info: %w", err)
	}
	n.selector.Cache().Reset()

	if n.registrar != nil {
		if err := n.registrar.SetState(ctx, string(StateOnline)); err != nil {
			return nil, fmt.Errorf("failed to publish node state: %w", err)
		}
		if err := n.registrar.Register(ctx); err != nil {
			return nil, fmt.Errorf("failed to register node: %w", err)
		}
	}

	n.mu.Lock()
	n.state = StateOnline
	n.last = res
	n.lastDur = time.Since(start)
	n.mu.Unlock()

	n.logger.Info("Node Online",
		"added", len(res.Added),
		"updated", len(res.Updated),
		"unmounted", len(res.Unmounted),
		"rejected", len(res.Rejected),
		"duration", time.Since(start))
	return res, nil
}

// Offline dumps the marker files, marks the local disks unmounted and
// deregisters the node. It is a no-op on an Offline node.
func (n *Node) Offline(ctx context.Context) error {
	n.transition.Lock()
	defer n.transition.Unlock()

	if n.State() == StateOffline {
		return nil
	}
	n.logger.Info("Going Offline")

	// Stop serving before the disks disappear
	n.mu.Lock()
	n.state = StateOffline
	n.mu.Unlock()

	if err := n.dumper.DumpAllDisks(ctx, n.hostID); err != nil {
		return fmt.Errorf("failed to dump disk info: %w", err)
	}

	ids, err := n.reconciler.MarkDisksUnmounted(ctx, n.hostID)
	if err != nil {
		return fmt.Errorf("failed to mark disks unmounted: %w", err)
	}
	n.selector.Cache().Reset()

	if n.registrar != nil {
		if err := n.registrar.Deregister(ctx); err != nil {
			n.logger.Warn("Failed to deregister node", "error", err)
		}
		if err := n.registrar.SetState(ctx, string(StateOffline)); err != nil {
			n.logger.Warn("Failed to record node state", "error", err)
		}
	}

	n.logger.Info("Node Offline", "unmounted", len(ids))
	return nil
}

func (n *Node) requireOnline() error {
	if n.State() != StateOnline {
		return ErrNotOnline
	}
	return nil
}

// FindTargetDisk selects a target disk for this host
func (n *Node) FindTargetDisk(ctx context.Context, req disks.TargetRequest) (*models.DiskRecord, error) {
	if err := n.requireOnline(); err != nil {
		return nil, err
	}
	req.HostID = n.hostID
	return n.selector.FindTargetDisk(ctx, req)
}

// DiskInfoForMimeType lists the disks of this host eligible for a mime-type
func (n *Node) DiskInfoForMimeType(ctx context.Context, mimeType string) ([]*models.DiskRecord, error) {
	if err := n.requireOnline(); err != nil {
		return nil, err
	}
	return n.selector.DiskInfoForMimeType(ctx, n.hostID, mimeType, false)
}

// UpdateDiskStatus applies the status update of an archived file
func (n *Node) UpdateDiskStatus(ctx context.Context, upd disks.StatusUpdate) (*models.DiskRecord, error) {
	if err := n.requireOnline(); err != nil {
		return nil, err
	}
	return n.status.Update(ctx, upd)
}

// ResetCache drops every cached target disk lookup
func (n *Node) ResetCache() {
	n.selector.Cache().Reset()
	n.logger.Debug("Target disk cache reset")
}

// Snapshot reports the node state for the admin API
func (n *Node) Snapshot() models.NodeStateResponse {
	n.mu.RLock()
	defer n.mu.RUnlock()

	resp := models.NodeStateResponse{HostID: n.hostID, State: string(n.state)}
	if n.last != nil {
		s := Summarize(n.last, n.lastDur)
		resp.LastReconcile = &s
	}
	return resp
}

// Summarize renders a reconciliation result for the admin API
func Summarize(res *disks.ReconcileResult, d time.Duration) models.ReconcileSummary {
	s := models.ReconcileSummary{
		Added:            nonNil(res.Added),
		Updated:          nonNil(res.Updated),
		Unmounted:        nonNil(res.Unmounted),
		RejectedSlots:    nonNil(res.Rejected),
		ProblemMimeTypes: res.ProblemMimeTypes,
		Plan:             res.Plan.Summary(),
		DurationMillis:   d.Milliseconds(),
	}
	for _, p := range res.Problems {
		s.Problems = append(s.Problems, models.SlotProblem{SlotID: p.SlotID, Kind: p.Kind, Message: p.Message})
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
