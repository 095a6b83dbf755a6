package disks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ngasd/ngasd/internal/diskinfo"
	"github.com/ngasd/ngasd/internal/models"
	"github.com/ngasd/ngasd/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileAddsMainAndReplicationDisks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	main := env.mount(t, "1", "disk-main")
	rep := env.mount(t, "2", "disk-rep")

	res, err := env.reconciler.Reconcile(ctx, testHost, inventoryOf(main, rep))
	require.NoError(t, err)

	assert.Equal(t, []string{"disk-main", "disk-rep"}, res.Added)
	assert.Equal(t, ActionAdd, res.Plan["1"].Kind)
	assert.Equal(t, ActionAdd, res.Plan["2"].Kind)
	assert.Empty(t, res.Rejected)
	assert.Empty(t, res.ProblemMimeTypes)
	assert.Empty(t, env.notes.Events())

	m := env.disk(t, "disk-main")
	assert.Equal(t, "Fits-M-000001", m.LogicalName)
	assert.Equal(t, testHost, m.HostID)
	assert.Equal(t, "1", m.SlotID)
	assert.Equal(t, main.MountPoint, m.MountPoint)
	assert.True(t, m.Mounted)
	assert.False(t, m.Completed)
	assert.Equal(t, int64(100000), m.AvailableMB)
	assert.Equal(t, "ESO-ARCHIVE", m.ArchiveName)
	assert.Equal(t, "Seagate", m.Manufacturer)
	assert.Equal(t, "HDD", m.DiskType)
	assert.Equal(t, testHost, m.LastHostID)
	assert.False(t, m.InstallationDate.IsZero())

	assert.Equal(t, "Fits-R-000000", env.disk(t, "disk-rep").LogicalName)

	hist := env.gw.History("disk-main")
	require.Len(t, hist, 1)
	assert.Equal(t, "Disk Registered", hist[0].Synopsis)
	doc, err := diskinfo.Decode(hist[0].Content)
	require.NoError(t, err)
	assert.Equal(t, "disk-main", doc.Disk.DiskID)

	assert.DirExists(t, filepath.Join(main.MountPoint, DBDir))
	assert.DirExists(t, filepath.Join(rep.MountPoint, DBCacheDir))
	assert.NoFileExists(t, filepath.Join(main.MountPoint, accessTestFile))
}

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := inventoryOf(
		env.mount(t, "1", "disk-main"),
		env.mount(t, "2", "disk-rep"),
		env.mount(t, "3", "disk-single"),
	)

	_, err := env.reconciler.Reconcile(ctx, testHost, inv)
	require.NoError(t, err)
	first, err := env.gw.ListDisks(ctx)
	require.NoError(t, err)

	res, err := env.reconciler.Reconcile(ctx, testHost, inv)
	require.NoError(t, err)
	second, err := env.gw.ListDisks(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, res.Added)
	assert.Equal(t, []string{"disk-main", "disk-rep", "disk-single"}, res.Updated)
	assert.Len(t, env.gw.History("disk-single"), 1)
}

func TestReconcileRejectsMainDiskInReplicationSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	moved := &models.DiskRecord{DiskID: "disk-old", LogicalName: "Fits-M-000003"}
	env.seed(t, moved)
	before := env.disk(t, "disk-old")

	res, err := env.reconciler.Reconcile(ctx, testHost, inventoryOf(
		env.mount(t, "1", "disk-new"),
		env.mount(t, "2", "disk-old"),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, res.Rejected)
	assert.Equal(t, ActionReject, res.Plan["1"].Kind)
	assert.Equal(t, ActionReject, res.Plan["2"].Kind)
	assert.Empty(t, res.Inventory)
	require.Len(t, res.Problems, 1)
	assert.Equal(t, ProblemMainAsRep, res.Problems[0].Kind)
	assert.Equal(t, "2", res.Problems[0].SlotID)

	// Nothing written: the old record is untouched and the new disk unknown
	assert.Equal(t, before, env.disk(t, "disk-old"))
	exists, err := env.gw.DiskExists(ctx, "disk-new")
	require.NoError(t, err)
	assert.False(t, exists)

	problems := env.notes.BySubject("DISK CONFIGURATION INCONSISTENCIES/PROBLEMS ENCOUNTERED")
	require.Len(t, problems, 1)
	assert.Equal(t, notification.TypeError, problems[0].Type)
	assert.Contains(t, problems[0].Body, "FOLLOWING PROBLEMS WERE ENCOUNTERED WHILE CHECKING THE NGAS DISK CONFIGURATION:\n")
	assert.Contains(t, problems[0].Body, "\nMAIN DISK USED AS REPLICATION DISK:\n")
}

func TestReconcileRejectsReplicationDiskInMainSlot(t *testing.T) {
	env := newTestEnv(t)

	env.seed(t, &models.DiskRecord{DiskID: "disk-rep", LogicalName: "R-000002"})

	res, err := env.reconciler.Reconcile(context.Background(), testHost, inventoryOf(
		env.mount(t, "3", "disk-rep"),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"3"}, res.Rejected)
	require.Len(t, res.Problems, 1)
	assert.Equal(t, ProblemRepAsMain, res.Problems[0].Kind)
	assert.False(t, env.disk(t, "disk-rep").Mounted)
}

func TestReconcileIllegalLogicalName(t *testing.T) {
	env := newTestEnv(t)

	env.seed(t, &models.DiskRecord{DiskID: "disk-bad", LogicalName: "garbage"})

	_, err := env.reconciler.Reconcile(context.Background(), testHost, inventoryOf(
		env.mount(t, "3", "disk-bad"),
	))
	assert.ErrorIs(t, err, ErrIllegalLogicalName)
}

func TestReconcileUnmountsVanishedDisks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedTarget(t, "disk-gone", "3", "M-000001", 500, false)
	env.seed(t, &models.DiskRecord{
		DiskID: "disk-elsewhere", LogicalName: "M-000002", HostID: "ngas2", SlotID: "3",
		MountPoint: filepath.Join(env.root, "slot3"), Mounted: true,
	})

	res, err := env.reconciler.Reconcile(ctx, testHost, models.Inventory{})
	require.NoError(t, err)
	assert.Equal(t, []string{"disk-gone"}, res.Unmounted)

	d := env.disk(t, "disk-gone")
	assert.False(t, d.Mounted)
	assert.Empty(t, d.HostID)
	assert.Empty(t, d.SlotID)
	assert.Empty(t, d.MountPoint)
	assert.Equal(t, testHost, d.LastHostID)

	assert.True(t, env.disk(t, "disk-elsewhere").Mounted)
}

func TestReconcileRejectsPairOfInaccessibleReplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.reconciler.Reconcile(ctx, testHost, inventoryOf(
		env.mount(t, "1", "disk-main"),
		env.broken("2", "disk-rep"),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, res.Rejected)
	assert.Empty(t, res.Added)
	require.Len(t, res.Problems, 1)
	assert.Equal(t, ProblemInaccessible, res.Problems[0].Kind)

	disks, err := env.gw.ListDisks(ctx)
	require.NoError(t, err)
	assert.Empty(t, disks)

	assert.Equal(t, []string{fitsMime}, res.ProblemMimeTypes)
	require.Len(t, env.notes.BySubject("DISK CONFIGURATION INCONSISTENCIES/PROBLEMS ENCOUNTERED"), 1)
	space := env.notes.BySubject("DISK SPACE INAVAILABILITY")
	require.Len(t, space, 1)
	assert.Equal(t, notification.TypeNoDisks, space[0].Type)
	assert.Contains(t, space[0].Body, fitsMime)
}

func TestReconcileInaccessibleMainDropsLaterReplication(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.reconciler.Reconcile(context.Background(), testHost, inventoryOf(
		env.broken("1", "disk-main"),
		env.mount(t, "2", "disk-rep"),
		env.mount(t, "3", "disk-single"),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, res.Rejected)
	assert.Equal(t, []string{"disk-single"}, res.Added)
	assert.Contains(t, res.Inventory, "3")
	assert.NotContains(t, res.Inventory, "2")
	assert.Empty(t, res.ProblemMimeTypes)
}

func TestReconcileCompletedDiskOnlyUpdated(t *testing.T) {
	env := newTestEnv(t)

	env.seed(t, &models.DiskRecord{DiskID: "disk-full", LogicalName: "M-000001", Completed: true})

	// Completed disks skip the accessibility probe
	pd := env.broken("3", "disk-full")
	res, err := env.reconciler.Reconcile(context.Background(), testHost, inventoryOf(pd))
	require.NoError(t, err)

	assert.Equal(t, []string{"disk-full"}, res.Updated)
	assert.Empty(t, res.Rejected)

	d := env.disk(t, "disk-full")
	assert.True(t, d.Completed)
	assert.True(t, d.Mounted)
	assert.Equal(t, "3", d.SlotID)
	assert.Equal(t, pd.MountPoint, d.MountPoint)

	assert.Equal(t, []string{fitsMime}, res.ProblemMimeTypes)
}

func TestReconcileArchiveProxySkipsStreamNotification(t *testing.T) {
	env := newTestEnv(t, func(s *Settings) { s.ArchiveProxy = true })

	env.seed(t, &models.DiskRecord{DiskID: "disk-full", LogicalName: "M-000001", Completed: true})

	res, err := env.reconciler.Reconcile(context.Background(), testHost, inventoryOf(env.mount(t, "3", "disk-full")))
	require.NoError(t, err)
	assert.Empty(t, res.ProblemMimeTypes)
	assert.Empty(t, env.notes.BySubject("DISK SPACE INAVAILABILITY"))
}

func TestReconcileMarkerFilePrecedence(t *testing.T) {
	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		markerDate time.Time
		wantSource Source
		wantName   string
	}{
		{"newer marker wins", newer, FromMarkerFile, "M-000007"},
		{"older marker loses", older.Add(-time.Hour), FromDB, "M-000001"},
		{"same date keeps db", older, FromDB, "M-000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			pd := env.mount(t, "3", "disk-x")

			env.seed(t, &models.DiskRecord{DiskID: "disk-x", LogicalName: "M-000001", InstallationDate: older})
			require.NoError(t, diskinfo.Write(pd.MountPoint, diskinfo.NewDocument(testHost, &models.DiskRecord{
				DiskID: "disk-x", LogicalName: "M-000007", InstallationDate: tt.markerDate,
			}, "")))

			res, err := env.reconciler.Reconcile(context.Background(), testHost, inventoryOf(pd))
			require.NoError(t, err)

			assert.Equal(t, tt.wantSource, res.Resolutions["3"].Source)
			assert.Equal(t, tt.wantName, env.disk(t, "disk-x").LogicalName)
		})
	}
}

func TestReconcileMarkerFileOnly(t *testing.T) {
	env := newTestEnv(t)
	pd := env.mount(t, "3", "disk-moved")

	require.NoError(t, diskinfo.Write(pd.MountPoint, diskinfo.NewDocument("ngas9", &models.DiskRecord{
		DiskID: "disk-moved", LogicalName: "M-000042", BytesStored: 999, InstallationDate: time.Now().UTC(),
	}, "")))

	res, err := env.reconciler.Reconcile(context.Background(), testHost, inventoryOf(pd))
	require.NoError(t, err)

	assert.Equal(t, FromMarkerFile, res.Resolutions["3"].Source)
	assert.Equal(t, []string{"disk-moved"}, res.Updated)

	d := env.disk(t, "disk-moved")
	assert.Equal(t, "M-000042", d.LogicalName)
	assert.Equal(t, int64(0), d.BytesStored) // recomputed from registered files
	assert.Len(t, env.gw.History("disk-moved"), 1)
}

func TestReconcileServingNode(t *testing.T) {
	env := newTestEnv(t, func(s *Settings) { s.AllowArchive = false })
	ctx := context.Background()

	pd := env.broken("3", "disk-ro")
	res, err := env.reconciler.Reconcile(ctx, testHost, inventoryOf(pd))
	require.NoError(t, err)
	assert.Equal(t, []string{"disk-ro"}, res.Added)
	assert.Equal(t, "M-000001", env.disk(t, "disk-ro").LogicalName)

	require.NoError(t, env.gw.RegisterFile(ctx, &models.FileRecord{DiskID: "disk-ro", FileID: "f1", FileVersion: 1, FileSize: 2048}))

	res, err = env.reconciler.Reconcile(ctx, testHost, inventoryOf(pd))
	require.NoError(t, err)
	assert.Equal(t, []string{"disk-ro"}, res.Updated)

	d := env.disk(t, "disk-ro")
	assert.Equal(t, int64(2048), d.BytesStored)
	assert.Equal(t, int64(1), d.NumberOfFiles)
	assert.Empty(t, env.notes.Events())
}

func TestGenerateLogicalName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	name, err := env.reconciler.GenerateLogicalName(ctx, testHost, "3")
	require.NoError(t, err)
	assert.Equal(t, "M-000001", name)

	env.seed(t, &models.DiskRecord{DiskID: "a", LogicalName: "Fits-M-000004"})
	name, err = env.reconciler.GenerateLogicalName(ctx, testHost, "1")
	require.NoError(t, err)
	assert.Equal(t, "Fits-M-000005", name)

	// Replication slot without a registered Main disk
	_, err = env.reconciler.GenerateLogicalName(ctx, testHost, "2")
	assert.Error(t, err)

	env.seedTarget(t, "main", "1", "Fits-M-000010", 10, false)
	name, err = env.reconciler.GenerateLogicalName(ctx, testHost, "2")
	require.NoError(t, err)
	assert.Equal(t, "Fits-R-000009", name)

	_, err = env.reconciler.GenerateLogicalName(ctx, testHost, "99")
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestMarkDisksUnmounted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedTarget(t, "d1", "1", "Fits-M-000001", 10, false)
	env.seedTarget(t, "d3", "3", "M-000002", 10, false)

	ids, err := env.reconciler.MarkDisksUnmounted(ctx, testHost)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d3"}, ids)

	for _, id := range ids {
		d := env.disk(t, id)
		assert.False(t, d.Mounted)
		assert.Empty(t, d.MountPoint)
		assert.Equal(t, testHost, d.LastHostID)
	}

	remaining, err := env.gw.MountedDiskIDs(ctx, testHost, env.root)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestAssociatedDiskID(t *testing.T) {
	env := newTestEnv(t)
	inv := inventoryOf(
		models.PhysicalDisk{DiskID: "m", SlotID: "1"},
		models.PhysicalDisk{DiskID: "r", SlotID: "2"},
		models.PhysicalDisk{DiskID: "s", SlotID: "3"},
	)

	assert.Equal(t, "r", AssociatedDiskID(env.topo, "m", inv))
	assert.Equal(t, "m", AssociatedDiskID(env.topo, "r", inv))
	assert.Empty(t, AssociatedDiskID(env.topo, "s", inv))
	assert.Empty(t, AssociatedDiskID(env.topo, "unknown", inv))

	delete(inv, "2")
	assert.Empty(t, AssociatedDiskID(env.topo, "m", inv))
}

func TestApplyOrder(t *testing.T) {
	topo := NewTopology([]StorageSet{
		{ID: "a", MainSlotID: "slot10", RepSlotID: "slot11"},
		{ID: "b", MainSlotID: "slot9", RepSlotID: "slot8"},
		{ID: "c", MainSlotID: "slot2"},
	}, nil)
	r := &Reconciler{topo: topo}

	order := r.applyOrder(Plan{
		"slot11": {Kind: ActionAdd},
		"slot10": {Kind: ActionAdd},
		"slot8":  {Kind: ActionUpdate},
		"slot9":  {Kind: ActionUpdate},
		"slot2":  {Kind: ActionAdd},
	})
	assert.Equal(t, []string{"slot2", "slot9", "slot8", "slot10", "slot11"}, order)
}

func TestApplyOrderMixedCase(t *testing.T) {
	topo := NewTopology([]StorageSet{
		{ID: "a", MainSlotID: "slot1"},
		{ID: "b", MainSlotID: "Slot2"},
		{ID: "c", MainSlotID: "slot10"},
	}, nil)
	r := &Reconciler{topo: topo}

	order := r.applyOrder(Plan{
		"slot10": {Kind: ActionAdd},
		"Slot2":  {Kind: ActionAdd},
		"slot1":  {Kind: ActionAdd},
	})
	assert.Equal(t, []string{"slot1", "Slot2", "slot10"}, order)
}

func TestRoleToken(t *testing.T) {
	tok, err := roleToken("LS-FitsStorage3-M-000003")
	require.NoError(t, err)
	assert.Equal(t, "M", tok)

	tok, err = roleToken("R-000001")
	require.NoError(t, err)
	assert.Equal(t, "R", tok)

	_, err = roleToken("")
	assert.ErrorIs(t, err, ErrIllegalLogicalName)
}
