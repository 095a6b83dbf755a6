package disks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/models"
	"github.com/ngasd/ngasd/internal/notification"
)

const (
	noStorageSetSubject = "NO STORAGE SET (DISKS) AVAILABLE"
	noDisksSubject      = "NO DISKS AVAILABLE"
	bytesPerMB          = 1048576.0
)

// TargetRequest asks for a disk to receive a new file
type TargetRequest struct {
	HostID        string
	MimeType      string
	ExemptDiskIDs []string
	Caching       bool
	RequiredBytes int64 // 0 means no space requirement
	// SuppressNotification skips the operator notification when no disk is found
	SuppressNotification bool
}

// Selector picks the target disk for incoming files
type Selector struct {
	topo     *Topology
	settings Settings
	gateway  metadata.Gateway
	notifier notification.Notifier
	cache    *TargetDiskCache
	logger   *logging.Logger
}

// NewSelector creates a selector. A nil cache gets a private one.
func NewSelector(topo *Topology, settings Settings, gateway metadata.Gateway,
	notifier notification.Notifier, cache *TargetDiskCache, logger *logging.Logger) *Selector {
	if cache == nil {
		cache = NewTargetDiskCache()
	}
	return &Selector{
		topo:     topo,
		settings: settings,
		gateway:  gateway,
		notifier: notifier,
		cache:    cache,
		logger:   logger.Component("selector"),
	}
}

// Cache returns the selector's cache
func (s *Selector) Cache() *TargetDiskCache {
	return s.cache
}

func noStorageSets(mimeType string) error {
	return fmt.Errorf("%w: %s", ErrNoStorageSets, mimeType)
}

func (s *Selector) noDisks(ctx context.Context, hostID, mimeType, subject string, send bool) error {
	err := noStorageSets(mimeType)
	s.logger.Warn("No target disk", "mime_type", mimeType, "reason", subject)
	if send {
		notify(ctx, s.notifier, s.logger, notification.Event{
			Type:    notification.TypeNoDisks,
			Subject: subject,
			Body:    err.Error(),
			HostID:  hostID,
		})
	}
	return err
}

// DiskInfoForMimeType returns the records of every disk of this host that
// sits in a slot of the stream's storage sets
func (s *Selector) DiskInfoForMimeType(ctx context.Context, hostID, mimeType string, sendNotification bool) ([]*models.DiskRecord, error) {
	stream, ok := s.topo.Stream(mimeType)
	if !ok {
		return nil, noStorageSets(mimeType)
	}

	recs, err := s.gateway.DiskInfoForSlots(ctx, hostID, s.topo.StreamSlots(stream))
	if err != nil {
		return nil, fmt.Errorf("failed to get disks for mime-type %s: %w", mimeType, err)
	}
	if len(recs) == 0 {
		return nil, s.noDisks(ctx, hostID, mimeType, noStorageSetSubject, sendNotification)
	}
	return recs, nil
}

// FindTargetDisk returns the best non-completed disk for the request
func (s *Selector) FindTargetDisk(ctx context.Context, req TargetRequest) (*models.DiskRecord, error) {
	start := time.Now()

	disk, err := s.findTargetDisk(ctx, req)
	switch {
	case err == nil:
		targetSelectionsTotal.WithLabelValues("ok").Inc()
		s.logger.Debug("Target disk found", "mime_type", req.MimeType, "disk_id", disk.DiskID,
			"duration", time.Since(start))
	case errors.Is(err, ErrNoStorageSets):
		targetSelectionsTotal.WithLabelValues("no_disks").Inc()
	default:
		targetSelectionsTotal.WithLabelValues("error").Inc()
	}
	return disk, err
}

func (s *Selector) findTargetDisk(ctx context.Context, req TargetRequest) (*models.DiskRecord, error) {
	var recs []*models.DiskRecord
	cached := false
	if req.Caching {
		recs, cached = s.cache.getCandidates(req.MimeType)
		if cached {
			targetCacheHitsTotal.WithLabelValues("candidates").Inc()
		}
	}
	if !cached {
		var err error
		recs, err = s.DiskInfoForMimeType(ctx, req.HostID, req.MimeType, !req.SuppressNotification)
		if err != nil {
			return nil, err
		}
		if req.Caching {
			s.cache.setCandidates(req.MimeType, recs)
		}
	}

	candidates := s.candidates(recs, req)
	if len(candidates) == 0 {
		return nil, s.noDisks(ctx, req.HostID, req.MimeType, noDisksSubject, !req.SuppressNotification)
	}

	best, err := s.bestTargetDisk(ctx, candidates, req.Caching)
	if err != nil {
		return nil, err
	}
	if !best.found {
		return nil, s.noDisks(ctx, req.HostID, req.MimeType, noDisksSubject, !req.SuppressNotification)
	}

	key := diskKey(best.diskID, req.MimeType)
	if req.Caching {
		if d, ok := s.cache.getDisk(key); ok {
			targetCacheHitsTotal.WithLabelValues("disks").Inc()
			return d, nil
		}
	}

	disk, err := s.gateway.ReadDisk(ctx, best.diskID)
	if err != nil {
		return nil, fmt.Errorf("failed to read target disk %s: %w", best.diskID, err)
	}
	if req.Caching {
		s.cache.setDisk(key, disk)
	}
	return disk, nil
}

// candidates filters the stream's disks down to usable Main disks
func (s *Selector) candidates(recs []*models.DiskRecord, req TargetRequest) []string {
	bySlot := make(map[string]*models.DiskRecord, len(recs))
	for _, r := range recs {
		bySlot[r.SlotID] = r
	}
	exempt := make(map[string]bool, len(req.ExemptDiskIDs))
	for _, id := range req.ExemptDiskIDs {
		exempt[id] = true
	}

	required := float64(req.RequiredBytes) / bytesPerMB
	enoughSpace := func(r *models.DiskRecord) bool {
		return req.RequiredBytes <= 0 || float64(r.AvailableMB) >= required
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if exempt[r.DiskID] {
			continue
		}
		if !s.topo.IsMainSlot(r.SlotID) || r.Completed || !enoughSpace(r) {
			continue
		}

		repSlot := s.topo.AssocSlot(r.SlotID)
		if rep, ok := bySlot[repSlot]; s.settings.Replication && repSlot != "" && ok {
			if rep.Completed || !enoughSpace(rep) {
				continue
			}
		}
		ids = append(ids, r.DiskID)
	}
	return ids
}

func (s *Selector) bestTargetDisk(ctx context.Context, candidates []string, caching bool) (bestEntry, error) {
	key := candidateKey(candidates)
	if caching {
		if e, ok := s.cache.getBest(key); ok {
			targetCacheHitsTotal.WithLabelValues("best").Inc()
			return e, nil
		}
	}

	id, found, err := s.gateway.BestTargetDisk(ctx, candidates, s.settings.RootDir)
	if err != nil {
		return bestEntry{}, fmt.Errorf("failed to rank target disks: %w", err)
	}
	e := bestEntry{diskID: id, found: found}
	if caching {
		s.cache.setBest(key, e)
	}
	return e, nil
}

// DiskCompleted reports whether a disk is marked completed; unknown disks are not
func (s *Selector) DiskCompleted(ctx context.Context, diskID string) (bool, error) {
	d, err := s.gateway.ReadDisk(ctx, diskID)
	if errors.Is(err, metadata.ErrDiskNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.Completed, nil
}
