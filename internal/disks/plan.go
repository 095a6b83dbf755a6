package disks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ngasd/ngasd/internal/models"
)

// Source tells where the authoritative info for a slot came from
type Source int

const (
	Unresolved Source = iota
	FromDB
	FromMarkerFile
)

func (s Source) String() string {
	switch s {
	case FromDB:
		return "db"
	case FromMarkerFile:
		return "marker_file"
	default:
		return "unresolved"
	}
}

// Resolution is the authoritative disk info for one slot
type Resolution struct {
	Source Source
	Record *models.DiskRecord // nil when Unresolved
}

// Resolved reports whether a record was found
func (r Resolution) Resolved() bool {
	return r.Source != Unresolved && r.Record != nil
}

// Completed reports whether the resolved record is a completed disk
func (r Resolution) Completed() bool {
	return r.Resolved() && r.Record.Completed
}

// ActionKind is what reconciliation does with a slot
type ActionKind int

const (
	ActionAdd ActionKind = iota + 1
	ActionUpdate
	ActionReject
)

func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "ADD"
	case ActionUpdate:
		return "UPDATE"
	case ActionReject:
		return "REJECT"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is a planned change for one slot; Record is set for updates
type Action struct {
	Kind   ActionKind
	Record *models.DiskRecord
}

// Plan maps slot ids to their planned action
type Plan map[string]Action

// Summary renders the plan as slot -> action name
func (p Plan) Summary() map[string]string {
	out := make(map[string]string, len(p))
	for slot, a := range p {
		out[slot] = a.Kind.String()
	}
	return out
}

// Problem kinds reported by reconciliation
const (
	ProblemInaccessible  = "DISK INACCESSIBLE"
	ProblemMainAsRep     = "MAIN DISK USED AS REPLICATION DISK"
	ProblemRepAsMain     = "REPLICATION DISK USED AS MAIN DISK"
	problemsSubject      = "DISK CONFIGURATION INCONSISTENCIES/PROBLEMS ENCOUNTERED"
	problemsBodyHeader   = "FOLLOWING PROBLEMS WERE ENCOUNTERED WHILE CHECKING THE NGAS DISK CONFIGURATION:\n"
	noTargetDisksSubject = "DISK SPACE INAVAILABILITY"
)

// Problem is a per-slot soft failure found during reconciliation
type Problem struct {
	SlotID  string
	Kind    string
	Message string
}

func problemsBody(problems []Problem) string {
	var b strings.Builder
	b.WriteString(problemsBodyHeader)
	for _, p := range problems {
		fmt.Fprintf(&b, "\n%s:\n%s\n", p.Kind, p.Message)
	}
	return b.String()
}

// ReconcileResult describes the outcome of one reconciliation pass
type ReconcileResult struct {
	Plan             Plan
	Resolutions      map[string]Resolution
	Rejected         []string
	Added            []string
	Updated          []string
	Unmounted        []string
	Problems         []Problem
	ProblemMimeTypes []string
	// Inventory is the working inventory with rejected slots removed
	Inventory models.Inventory
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
