package disks

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopLogger() *logging.Logger {
	return logging.NewNop()
}

func TestTopologyFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StorageSets = []config.StorageSetConfig{
		{ID: "set1", DiskLabel: "Fits", MainDiskSlotID: "1", RepDiskSlotID: "2"},
		{ID: "set2", MainDiskSlotID: "3"},
	}
	cfg.Streams = []config.StreamConfig{{MimeType: fitsMime, StorageSetIDs: []string{"set2", "set1", "nope"}}}

	topo := TopologyFromConfig(cfg)

	assert.Equal(t, []string{"1", "2", "3"}, topo.SlotIDs())
	assert.True(t, topo.IsMainSlot("1"))
	assert.False(t, topo.IsMainSlot("2"))
	assert.False(t, topo.IsMainSlot("9"))
	assert.Equal(t, "2", topo.AssocSlot("1"))
	assert.Equal(t, "1", topo.AssocSlot("2"))
	assert.Empty(t, topo.AssocSlot("3"))
	assert.Empty(t, topo.AssocSlot("9"))

	set, err := topo.StorageSetForSlot("2")
	require.NoError(t, err)
	assert.Equal(t, "Fits", set.DiskLabel)
	_, err = topo.StorageSetForSlot("9")
	assert.ErrorIs(t, err, ErrUnknownSlot)

	_, ok := topo.StorageSet("set2")
	assert.True(t, ok)

	st, ok := topo.Stream(fitsMime)
	require.True(t, ok)
	assert.Equal(t, []string{"3", "1", "2"}, topo.StreamSlots(st))
	_, ok = topo.Stream("text/plain")
	assert.False(t, ok)
	assert.Len(t, topo.Streams(), 1)
}

func TestNaturalLess(t *testing.T) {
	in := []string{"slot10", "Slot2", "slot1", "a", "slot02", "b10", "b9"}
	sort.SliceStable(in, func(i, j int) bool { return naturalLess(in[i], in[j]) })
	assert.Equal(t, []string{"a", "b9", "b10", "slot1", "Slot2", "slot02", "slot10"}, in)

	assert.True(t, naturalLess("slot1", "Slot2"))
	assert.False(t, naturalLess("Slot2", "slot1"))
	// Case decides only when everything else ties
	assert.True(t, naturalLess("Slot1", "slot1"))
	assert.False(t, naturalLess("slot1", "Slot1"))
	assert.False(t, naturalLess("slot1", "slot1"))
	assert.True(t, naturalLess("Slot", "slot1"))
}

func TestCheckAccessibility(t *testing.T) {
	mount := t.TempDir()
	require.NoError(t, CheckAccessibility(mount))
	assert.NoFileExists(t, filepath.Join(mount, accessTestFile))

	err := CheckAccessibility(filepath.Join(mount, "absent"))
	assert.ErrorIs(t, err, ErrDiskInaccessible)
}

func TestEnsureHousekeepingDirs(t *testing.T) {
	mount := t.TempDir()
	require.NoError(t, ensureHousekeepingDirs(mount))
	assert.DirExists(t, filepath.Join(mount, ".db", "cache"))

	file := filepath.Join(mount, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, ensureHousekeepingDirs(file))
}
