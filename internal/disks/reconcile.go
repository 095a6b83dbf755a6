package disks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ngasd/ngasd/internal/diskinfo"
	"github.com/ngasd/ngasd/internal/inventory"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/models"
	"github.com/ngasd/ngasd/internal/notification"
)

const historyRegistered = "Disk Registered"

// Reconciler aligns the metadata store with the disks physically present on the node
type Reconciler struct {
	topo     *Topology
	settings Settings
	gateway  metadata.Gateway
	space    inventory.SpaceProber
	notifier notification.Notifier
	selector *Selector
	logger   *logging.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler. The selector is used for the stream
// availability check after an archiving pass.
func NewReconciler(topo *Topology, settings Settings, gateway metadata.Gateway, space inventory.SpaceProber,
	notifier notification.Notifier, selector *Selector, logger *logging.Logger) *Reconciler {
	return &Reconciler{
		topo:     topo,
		settings: settings,
		gateway:  gateway,
		space:    space,
		notifier: notifier,
		selector: selector,
		logger:   logger.Component("reconciler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile runs one pass for hostID against the physical inventory
func (r *Reconciler) Reconcile(ctx context.Context, hostID string, inv models.Inventory) (*ReconcileResult, error) {
	start := time.Now()
	reconcileRunsTotal.Inc()
	defer func() { reconcileDurationSeconds.Observe(time.Since(start).Seconds()) }()

	work := inv.Copy()
	res := &ReconcileResult{Plan: make(Plan)}

	survivors, err := r.unmountStale(ctx, hostID, work, res)
	if err != nil {
		return nil, err
	}

	res.Resolutions, err = r.resolve(ctx, work, survivors)
	if err != nil {
		return nil, err
	}

	if r.settings.AllowArchive && len(work) > 0 {
		err = r.archivingPass(ctx, hostID, work, res)
	} else {
		err = r.servingPass(ctx, hostID, work, res)
	}
	if err != nil {
		return nil, err
	}

	res.Inventory = work
	r.logger.Info("Disk reconciliation completed",
		"host_id", hostID,
		"added", len(res.Added),
		"updated", len(res.Updated),
		"unmounted", len(res.Unmounted),
		"rejected", len(res.Rejected),
		"duration", time.Since(start))
	return res, nil
}

// unmountStale marks disks registered as mounted on hostID but absent from
// the inventory as unmounted, and returns the remaining ones by slot
func (r *Reconciler) unmountStale(ctx context.Context, hostID string, inv models.Inventory, res *ReconcileResult) (map[string]*models.DiskRecord, error) {
	ids, err := r.gateway.MountedDiskIDs(ctx, hostID, r.settings.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list mounted disks: %w", err)
	}

	survivors := make(map[string]*models.DiskRecord, len(ids))
	for _, id := range ids {
		rec, err := r.gateway.ReadDisk(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read mounted disk %s: %w", id, err)
		}

		if slot, ok := inv.SlotForDisk(id); ok {
			survivors[slot] = rec
			r.logger.Debug("Disk available", "disk_id", id, "slot_id", slot)
			continue
		}

		r.logger.Info("Disk not available anymore, marking unmounted", "disk_id", id)
		rec.MarkUnmounted(hostID)
		if _, err := r.gateway.WriteDisk(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to unmount disk %s: %w", id, err)
		}
		res.Unmounted = append(res.Unmounted, id)
	}
	return survivors, nil
}

// resolve picks the authoritative info per inventory slot. A marker file
// overrides the DB record when its installation date is more recent.
func (r *Reconciler) resolve(ctx context.Context, inv models.Inventory, survivors map[string]*models.DiskRecord) (map[string]Resolution, error) {
	out := make(map[string]Resolution, len(inv))

	for _, slot := range inv.SlotIDs() {
		pd := inv[slot]

		dbRec, ok := survivors[slot]
		if !ok {
			exists, err := r.gateway.DiskExists(ctx, pd.DiskID)
			if err != nil {
				return nil, fmt.Errorf("failed to look up disk %s: %w", pd.DiskID, err)
			}
			if exists {
				dbRec, err = r.gateway.ReadDisk(ctx, pd.DiskID)
				if err != nil {
					return nil, fmt.Errorf("failed to read disk %s: %w", pd.DiskID, err)
				}
			}
		}

		marker := r.readMarker(slot, pd.MountPoint)

		switch {
		case dbRec == nil && marker == nil:
			out[slot] = Resolution{Source: Unresolved}
		case dbRec == nil:
			out[slot] = Resolution{Source: FromMarkerFile, Record: marker}
		case marker != nil && marker.InstallationDate.After(dbRec.InstallationDate):
			r.logger.Info("Marker file more recent than DB record, using marker",
				"disk_id", pd.DiskID, "slot_id", slot)
			out[slot] = Resolution{Source: FromMarkerFile, Record: marker}
		default:
			out[slot] = Resolution{Source: FromDB, Record: dbRec}
		}
	}
	return out, nil
}

func (r *Reconciler) readMarker(slot, mountPoint string) *models.DiskRecord {
	doc, err := diskinfo.Read(mountPoint)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		r.logger.Warn("Ignoring unreadable disk info file", "slot_id", slot, "error", err)
		return nil
	}
	r.logger.Info("Found disk info file", "slot_id", slot)
	return doc.Disk
}

// roleToken returns the Main/Replication token of a logical name such as "Fits-M-000004"
func roleToken(logicalName string) (string, error) {
	parts := strings.Split(logicalName, "-")
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %q", ErrIllegalLogicalName, logicalName)
	}
	return parts[len(parts)-2], nil
}

func (r *Reconciler) archivingPass(ctx context.Context, hostID string, inv models.Inventory, res *ReconcileResult) error {
	rejected := make(map[string]bool)
	update := make(Plan)

	reject := func(slot, kind, msg string) {
		r.logger.Error(msg, "slot_id", slot, "kind", kind)
		rejected[slot] = true
		res.Problems = append(res.Problems, Problem{SlotID: slot, Kind: kind, Message: msg})
		reconcileSlotProblemsTotal.WithLabelValues(kind).Inc()
	}

	for _, slot := range r.topo.SlotIDs() {
		pd, ok := inv[slot]
		if !ok {
			continue
		}
		assoc := r.topo.AssocSlot(slot)
		resolution := res.Resolutions[slot]

		if resolution.Completed() {
			r.logger.Info("Disk marked as completed, updating info only", "slot_id", slot)
			update[slot] = Action{Kind: ActionUpdate, Record: resolution.Record}
			continue
		}

		diskRef := fmt.Sprintf("Slot ID: %s - Disk ID: %s", slot, pd.DiskID)
		if err := CheckAccessibility(pd.MountPoint); err != nil {
			reject(slot, ProblemInaccessible, fmt.Sprintf("Disk is inaccessible: %s: %v", diskRef, err))
			delete(update, assoc)
			continue
		}

		if !resolution.Resolved() {
			if !rejected[assoc] {
				update[slot] = Action{Kind: ActionAdd}
			}
		} else {
			token, err := roleToken(resolution.Record.LogicalName)
			if err != nil {
				return fmt.Errorf("disk %s: %w", resolution.Record.DiskID, err)
			}
			prevMain := token == "M"
			main := r.topo.IsMainSlot(slot)

			if prevMain && !main {
				reject(slot, ProblemMainAsRep, fmt.Sprintf(
					"Disk in slot %s with logical name %s was used as Main Disk and is now installed in a Replication slot",
					slot, resolution.Record.LogicalName))
				continue
			}
			if !prevMain && main {
				reject(slot, ProblemRepAsMain, fmt.Sprintf(
					"Disk in slot %s with logical name %s was used as Replication Disk and is now installed in a Main slot",
					slot, resolution.Record.LogicalName))
				continue
			}
			if !rejected[assoc] {
				update[slot] = Action{Kind: ActionUpdate, Record: resolution.Record}
			}
		}

		if r.settings.AllowArchive || r.settings.AllowRemove {
			if err := ensureHousekeepingDirs(pd.MountPoint); err != nil {
				return err
			}
		}
	}

	// A disk whose configured partner was not accepted is rejected as well
	for _, slot := range sortedKeys(update) {
		if _, ok := update[slot]; !ok {
			continue
		}
		if res.Resolutions[slot].Completed() {
			continue
		}
		assoc := r.topo.AssocSlot(slot)
		if assoc == "" {
			continue
		}
		if _, ok := update[assoc]; !ok {
			r.logger.Info("Disk has no associated disk, rejecting", "slot_id", slot, "assoc_slot_id", assoc)
			delete(update, slot)
			rejected[slot] = true
		}
	}

	removed := make(map[string]bool)
	for _, slot := range sortedKeys(rejected) {
		for _, id := range []string{slot, r.topo.AssocSlot(slot)} {
			if pd, ok := inv[id]; ok {
				r.logger.Info("Removing invalid disk from working inventory",
					"slot_id", id, "mount_point", pd.MountPoint, "disk_id", pd.DiskID)
				delete(inv, id)
				removed[id] = true
			}
			delete(update, id)
		}
	}
	for slot := range removed {
		res.Plan[slot] = Action{Kind: ActionReject}
	}
	res.Rejected = sortedKeys(removed)

	if len(res.Problems) > 0 {
		notify(ctx, r.notifier, r.logger, notification.Event{
			Type:    notification.TypeError,
			Subject: problemsSubject,
			Body:    problemsBody(res.Problems),
			HostID:  hostID,
		})
	}

	for _, slot := range r.applyOrder(update) {
		action := update[slot]
		res.Plan[slot] = action
		if err := r.apply(ctx, hostID, slot, inv[slot], action, res); err != nil {
			return err
		}
	}

	return r.checkStreams(ctx, hostID, res)
}

// applyOrder lists the planned slots storage set by storage set, sets in
// natural order of their Main slot, Main before Replication
func (r *Reconciler) applyOrder(update Plan) []string {
	sets := make(map[string]StorageSet)
	for slot := range update {
		if set, err := r.topo.StorageSetForSlot(slot); err == nil {
			sets[set.MainSlotID] = set
		}
	}

	mains := sortedKeys(sets)
	sort.SliceStable(mains, func(i, j int) bool { return naturalLess(mains[i], mains[j]) })

	order := make([]string, 0, len(update))
	for _, m := range mains {
		set := sets[m]
		for _, slot := range []string{set.MainSlotID, set.RepSlotID} {
			if _, ok := update[slot]; ok && slot != "" {
				order = append(order, slot)
			}
		}
	}
	return order
}

func (r *Reconciler) apply(ctx context.Context, hostID, slot string, pd models.PhysicalDisk, action Action, res *ReconcileResult) error {
	switch action.Kind {
	case ActionAdd:
		if err := r.addDisk(ctx, hostID, slot, pd); err != nil {
			return err
		}
		res.Added = append(res.Added, pd.DiskID)
	case ActionUpdate:
		if err := r.updateDisk(ctx, hostID, slot, pd, action.Record); err != nil {
			return err
		}
		res.Updated = append(res.Updated, pd.DiskID)
	}
	return nil
}

// checkStreams verifies every stream still has a usable storage set
func (r *Reconciler) checkStreams(ctx context.Context, hostID string, res *ReconcileResult) error {
	if r.selector == nil || r.settings.ArchiveProxy {
		return nil
	}

	for _, st := range r.topo.Streams() {
		_, err := r.selector.FindTargetDisk(ctx, TargetRequest{HostID: hostID, MimeType: st.MimeType})
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNoStorageSets) {
			return err
		}
		r.logger.Warn("No target disks for stream", "mime_type", st.MimeType)
		res.ProblemMimeTypes = append(res.ProblemMimeTypes, st.MimeType)
	}

	if len(res.ProblemMimeTypes) > 0 {
		notify(ctx, r.notifier, r.logger, notification.Event{
			Type:    notification.TypeNoDisks,
			Subject: noTargetDisksSubject,
			Body:    "No target disks found for the following mime-types: " + strings.Join(res.ProblemMimeTypes, " "),
			HostID:  hostID,
		})
	}
	return nil
}

// servingPass registers the mounted disks of a node that does not archive
func (r *Reconciler) servingPass(ctx context.Context, hostID string, inv models.Inventory, res *ReconcileResult) error {
	for _, slot := range inv.SlotIDs() {
		pd := inv[slot]

		rec, err := r.gateway.ReadDisk(ctx, pd.DiskID)
		switch {
		case err == nil:
		case errors.Is(err, metadata.ErrDiskNotFound):
			rec = res.Resolutions[slot].Record
		default:
			return fmt.Errorf("failed to read disk %s: %w", pd.DiskID, err)
		}

		action := Action{Kind: ActionAdd}
		if rec != nil {
			action = Action{Kind: ActionUpdate, Record: rec}
		}
		res.Plan[slot] = action
		if err := r.apply(ctx, hostID, slot, pd, action, res); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) availableMB(mountPoint string) int64 {
	mb, err := r.space.AvailableMB(mountPoint)
	if err != nil {
		r.logger.Warn("Cannot determine free space", "mount_point", mountPoint, "error", err)
		return 0
	}
	return mb
}

// addDisk registers a disk seen for the first time
func (r *Reconciler) addDisk(ctx context.Context, hostID, slot string, pd models.PhysicalDisk) error {
	logicalName, err := r.GenerateLogicalName(ctx, hostID, slot)
	if err != nil {
		return err
	}

	rec := &models.DiskRecord{
		DiskID:           pd.DiskID,
		LogicalName:      logicalName,
		HostID:           hostID,
		SlotID:           slot,
		MountPoint:       pd.MountPoint,
		Mounted:          true,
		AvailableMB:      r.availableMB(pd.MountPoint),
		InstallationDate: r.now(),
		ArchiveName:      r.settings.ArchiveName,
		Manufacturer:     pd.Manufacturer,
		DiskType:         pd.DiskType,
		LastHostID:       hostID,
	}

	if err := r.write(ctx, hostID, rec); err != nil {
		return err
	}
	r.logger.Info("Added disk", "disk_id", pd.DiskID, "slot_id", slot, "logical_name", logicalName)
	return nil
}

// updateDisk refreshes placement and statistics of a known disk
func (r *Reconciler) updateDisk(ctx context.Context, hostID, slot string, pd models.PhysicalDisk, known *models.DiskRecord) error {
	bytesStored, err := r.gateway.SumBytesStored(ctx, pd.DiskID)
	if err != nil {
		return fmt.Errorf("failed to sum bytes stored on %s: %w", pd.DiskID, err)
	}
	files, err := r.gateway.CountFiles(ctx, pd.DiskID)
	if err != nil {
		return fmt.Errorf("failed to count files on %s: %w", pd.DiskID, err)
	}

	rec := known.Clone()
	rec.DiskID = pd.DiskID
	rec.ArchiveName = r.settings.ArchiveName
	rec.HostID = hostID
	rec.SlotID = slot
	rec.Mounted = true
	rec.MountPoint = pd.MountPoint
	rec.LastHostID = hostID
	rec.BytesStored = bytesStored
	rec.NumberOfFiles = files
	rec.AvailableMB = r.availableMB(pd.MountPoint)

	if err := r.write(ctx, hostID, rec); err != nil {
		return err
	}
	r.logger.Debug("Updated disk", "disk_id", pd.DiskID, "slot_id", slot)
	return nil
}

// write persists rec and records a registration history entry on first insert
func (r *Reconciler) write(ctx context.Context, hostID string, rec *models.DiskRecord) error {
	inserted, err := r.gateway.WriteDisk(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to write disk %s: %w", rec.DiskID, err)
	}
	if !inserted {
		return nil
	}

	payload, err := diskinfo.Encode(diskinfo.NewDocument(hostID, rec, historyRegistered))
	if err != nil {
		return err
	}
	err = r.gateway.AddDiskHistoryEntry(ctx, models.DiskHistoryEntry{
		HostID:      hostID,
		DiskID:      rec.DiskID,
		Date:        r.now(),
		Synopsis:    historyRegistered,
		ContentType: "application/json",
		Content:     payload,
	})
	if err != nil {
		return fmt.Errorf("failed to add history for disk %s: %w", rec.DiskID, err)
	}
	return nil
}

// GenerateLogicalName builds "<label>-<M|R>-<NNNNNN>" for a disk added in slot.
// Main disks take the archive-wide maximum sequence number plus one.
// Replication disks take their Main disk's number minus one.
func (r *Reconciler) GenerateLogicalName(ctx context.Context, hostID, slot string) (string, error) {
	set, err := r.topo.StorageSetForSlot(slot)
	if err != nil {
		return "", err
	}

	role := "R"
	if set.MainSlotID == slot {
		role = "M"
	}
	prefix := role
	if set.DiskLabel != "" {
		prefix = set.DiskLabel + "-" + role
	}

	var number int
	if role == "M" {
		highest, found, err := r.gateway.MaxDiskSequenceNumber(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get max disk number: %w", err)
		}
		number = 1
		if found {
			number = highest + 1
		}
	} else {
		mainID, found, err := r.gateway.DiskIDForSlot(ctx, hostID, set.MainSlotID)
		if err != nil {
			return "", fmt.Errorf("failed to get main disk of slot %s: %w", set.MainSlotID, err)
		}
		if !found {
			return "", fmt.Errorf("no main disk registered in slot %s for replication slot %s", set.MainSlotID, slot)
		}
		mainName, err := r.gateway.LogicalNameForDisk(ctx, mainID)
		if err != nil {
			return "", fmt.Errorf("failed to get logical name of disk %s: %w", mainID, err)
		}
		mainNumber, ok := metadata.SequenceNumber(mainName)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrIllegalLogicalName, mainName)
		}
		number = mainNumber - 1
	}

	return fmt.Sprintf("%s-%06d", prefix, number), nil
}

// MarkDisksUnmounted marks every disk mounted on hostID as unmounted
func (r *Reconciler) MarkDisksUnmounted(ctx context.Context, hostID string) ([]string, error) {
	ids, err := r.gateway.MountedDiskIDs(ctx, hostID, r.settings.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list mounted disks: %w", err)
	}

	for _, id := range ids {
		rec, err := r.gateway.ReadDisk(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read disk %s: %w", id, err)
		}
		rec.MarkUnmounted(hostID)
		if _, err := r.gateway.WriteDisk(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to unmount disk %s: %w", id, err)
		}
		r.logger.Info("Marked disk as unmounted", "disk_id", id)
	}
	return ids, nil
}

// AssociatedDiskID returns the id of the disk currently in the slot paired
// with diskID's slot, or "" if there is none
func AssociatedDiskID(topo *Topology, diskID string, inv models.Inventory) string {
	slot, ok := inv.SlotForDisk(diskID)
	if !ok {
		return ""
	}
	assoc := topo.AssocSlot(slot)
	if assoc == "" {
		return ""
	}
	if pd, ok := inv[assoc]; ok {
		return pd.DiskID
	}
	return ""
}
