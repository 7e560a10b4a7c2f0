package types

import "fmt"

// MaxRevisionIDLen is the maximum length, in bytes, of a revision
// identifier accepted by the interner (spec.md §6).
const MaxRevisionIDLen = 256

// NullRevision is the sentinel identifying the empty ancestry. It must
// never be interned; RevisionInterner.Intern rejects it.
const NullRevision = RevID("null:")

// DefaultMainlineRangeLen is MAX_RANGE when the caller leaves
// mainline_range_len unset.
const DefaultMainlineRangeLen = 100

// MainlineBranch is the sentinel sub-branch key used for revisions on
// the mainline (merge_depth 0). No dotted sub-branch key ever equals it,
// since dotted branch keys are always >= 1.
const MainlineBranch = 0

// RevID is an opaque, globally-unique revision identifier as supplied by
// the host VCS. It is treated as an uninterpreted byte string; Go's
// comparable string type is used so it can key maps directly.
type RevID string

// DBID is a dense, monotonically-assigned integer identifying an interned
// revision. Values are >= 1. DBID values carry no meaning beyond identity
// and join-ability; allocation order is first-sight order during ancestry
// discovery.
type DBID int64

// Valid reports whether id is an acceptable external revision identifier:
// non-empty, at most MaxRevisionIDLen bytes, and not the null revision.
func (id RevID) Valid() error {
	if id == NullRevision {
		return fmt.Errorf("revindex: NULL_REVISION must never be interned")
	}
	if len(id) == 0 {
		return fmt.Errorf("revindex: empty revision id")
	}
	if len(id) > MaxRevisionIDLen {
		return fmt.Errorf("revindex: revision id exceeds %d bytes", MaxRevisionIDLen)
	}
	return nil
}

// RevisionRow is the persisted shape of one row of the revision table,
// joined with its ghost status.
type RevisionRow struct {
	DBID  DBID
	RevID RevID
	GDFO  int
	Ghost bool
}

// ParentEdgeRow is one row of the parent table: a single ordered edge.
// ParentIndex 0 is the left-hand (first) parent.
type ParentEdgeRow struct {
	Child       DBID
	Parent      DBID
	ParentIndex int
}
