package disks

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ngasd/ngasd/internal/config"
)

// StorageSet pairs a Main slot with an optional Replication slot
type StorageSet struct {
	ID         string
	DiskLabel  string
	MainSlotID string
	RepSlotID  string
}

// Stream maps a mime-type to its eligible storage sets, in configured order
type Stream struct {
	MimeType      string
	StorageSetIDs []string
}

// Topology is the read-only slot, storage set and stream layout of a node
type Topology struct {
	sets      []StorageSet
	setByID   map[string]StorageSet
	setBySlot map[string]StorageSet
	streams   []Stream
	streamByM map[string]Stream
}

// NewTopology builds a topology from explicit storage sets and streams
func NewTopology(sets []StorageSet, streams []Stream) *Topology {
	t := &Topology{
		sets:      sets,
		setByID:   make(map[string]StorageSet, len(sets)),
		setBySlot: make(map[string]StorageSet, 2*len(sets)),
		streams:   streams,
		streamByM: make(map[string]Stream, len(streams)),
	}
	for _, s := range sets {
		t.setByID[s.ID] = s
		t.setBySlot[s.MainSlotID] = s
		if s.RepSlotID != "" {
			t.setBySlot[s.RepSlotID] = s
		}
	}
	for _, st := range streams {
		t.streamByM[st.MimeType] = st
	}
	return t
}

// TopologyFromConfig builds the topology of the configured node
func TopologyFromConfig(cfg *config.Config) *Topology {
	sets := make([]StorageSet, 0, len(cfg.StorageSets))
	for _, s := range cfg.StorageSets {
		sets = append(sets, StorageSet{
			ID:         s.ID,
			DiskLabel:  s.DiskLabel,
			MainSlotID: s.MainDiskSlotID,
			RepSlotID:  s.RepDiskSlotID,
		})
	}
	streams := make([]Stream, 0, len(cfg.Streams))
	for _, st := range cfg.Streams {
		streams = append(streams, Stream{MimeType: st.MimeType, StorageSetIDs: st.StorageSetIDs})
	}
	return NewTopology(sets, streams)
}

// SlotIDs returns every configured slot id, sorted
func (t *Topology) SlotIDs() []string {
	ids := make([]string, 0, len(t.setBySlot))
	for id := range t.setBySlot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StorageSetForSlot returns the storage set a slot belongs to
func (t *Topology) StorageSetForSlot(slotID string) (StorageSet, error) {
	s, ok := t.setBySlot[slotID]
	if !ok {
		return StorageSet{}, fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	return s, nil
}

// StorageSet returns the storage set with the given id
func (t *Topology) StorageSet(id string) (StorageSet, bool) {
	s, ok := t.setByID[id]
	return s, ok
}

// IsMainSlot reports whether slotID is the Main slot of its storage set
func (t *Topology) IsMainSlot(slotID string) bool {
	s, ok := t.setBySlot[slotID]
	return ok && s.MainSlotID == slotID
}

// AssocSlot returns the slot paired with slotID, or "" if there is none
func (t *Topology) AssocSlot(slotID string) string {
	s, ok := t.setBySlot[slotID]
	if !ok {
		return ""
	}
	if s.MainSlotID == slotID {
		return s.RepSlotID
	}
	return s.MainSlotID
}

// Streams returns the configured streams in configuration order
func (t *Topology) Streams() []Stream {
	return t.streams
}

// Stream returns the stream for a mime-type
func (t *Topology) Stream(mimeType string) (Stream, bool) {
	st, ok := t.streamByM[mimeType]
	return st, ok
}

// StreamSlots returns the Main and Replication slot ids of every storage set
// eligible for the stream
func (t *Topology) StreamSlots(st Stream) []string {
	slots := make([]string, 0, 2*len(st.StorageSetIDs))
	for _, id := range st.StorageSetIDs {
		s, ok := t.setByID[id]
		if !ok {
			continue
		}
		slots = append(slots, s.MainSlotID)
		if s.RepSlotID != "" {
			slots = append(slots, s.RepSlotID)
		}
	}
	return slots
}

// naturalLess compares strings with embedded numbers by numeric value, so
// "slot2" sorts before "slot10". Letter case only breaks ties.
func naturalLess(a, b string) bool {
	caseDiff := 0
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, restA := leadingDigits(a)
			nb, restB := leadingDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			a, b = restA, restB
			continue
		}
		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			return la < lb
		}
		if caseDiff == 0 && ca != cb {
			if ca < cb {
				caseDiff = -1
			} else {
				caseDiff = 1
			}
		}
		a, b = a[1:], b[1:]
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return caseDiff < 0
}

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
