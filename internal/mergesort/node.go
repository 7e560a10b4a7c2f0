// Package mergesort implements FullMergeSorter and IncrementalMergeSorter
// (spec.md §4.5, §4.6): the classical depth-first mainline-merge-sort
// numbering algorithm, and the incremental extension that produces only
// the delta when a new tip is imported.
package mergesort

import (
	"context"

	"github.com/jugmac00/revindex/internal/types"
)

// Node is one scheduled revision, already carrying its assigned dotted
// revno, merge depth and end-of-merge flag. Dist is filled in once the
// final tip-first order is known (0 == tip itself).
type Node struct {
	DBID       types.DBID
	Revno      types.DottedRevno
	EndOfMerge bool
	MergeDepth int
	Dist       int
}

// ParentsFunc returns dbid's ordered parent list (index 0 == left-hand).
type ParentsFunc func(ctx context.Context, dbid types.DBID) ([]types.DBID, error)

// GhostFunc reports whether dbid is a ghost: referenced as a parent but
// with unknown content. Ghosts are never scheduled or emitted.
type GhostFunc func(ctx context.Context, dbid types.DBID) (bool, error)

// RevnoFunc looks up an already-assigned dotted revno for dbid, used by
// IncrementalMergeSorter to consult historical dotted_revno rows
// alongside its own in-progress schedule. Returns ok=false if dbid has no
// known revno yet.
type RevnoFunc func(ctx context.Context, dbid types.DBID) (types.DottedRevno, bool, error)

// IsImportedTipFunc reports whether dbid already has a self-referencing
// dotted_revno row, i.e. is the tip of some prior complete import.
type IsImportedTipFunc func(ctx context.Context, dbid types.DBID) (bool, error)

// GDFOFunc returns dbid's generation-depth-from-origin.
type GDFOFunc func(ctx context.Context, dbid types.DBID) (int, error)

// ImportedFunc reports whether dbid already has a historical dotted_revno
// row scoped to one fixed tip (t_imp in spec.md §4.6).
type ImportedFunc func(ctx context.Context, dbid types.DBID) (bool, error)

// ChildrenFunc returns every revision that has parent as one of its
// parents.
type ChildrenFunc func(ctx context.Context, parent types.DBID) ([]types.DBID, error)

// FirstChildFunc reports whether some historical revision already claims
// parent's "first child" slot (its left-hand parent continuation).
type FirstChildFunc func(ctx context.Context, parent types.DBID) (bool, error)

// BranchCountFunc returns how many sub-branches are already rooted at
// base in the historical numbering, so new allocations do not collide
// with it (spec.md §4.6's step_to_latest_branch).
type BranchCountFunc func(ctx context.Context, base int) (int, error)

// filteredParents returns dbid's ordered parents with ghosts removed,
// plus whether its (non-ghost) left-hand parent exists.
func filteredParents(ctx context.Context, dbid types.DBID, parentsOf ParentsFunc, isGhost GhostFunc) (lhParent types.DBID, hasLH bool, others []types.DBID, err error) {
	parents, err := parentsOf(ctx, dbid)
	if err != nil {
		return 0, false, nil, err
	}
	for i, p := range parents {
		ghost, err := isGhost(ctx, p)
		if err != nil {
			return 0, false, nil, err
		}
		if ghost {
			continue
		}
		if i == 0 {
			lhParent, hasLH = p, true
			continue
		}
		others = append(others, p)
	}
	return lhParent, hasLH, others, nil
}

// branchAllocator assigns dotted revnos per the rule shared by both
// sorters (spec.md §4.5 popped-node assignment, with the new-root
// precedence resolved in SPEC_FULL.md's Open Questions section):
//
//   - no (non-ghost) left-hand parent: new-root. The very first mainline
//     revno ever assigned in this tip's numbering is (1,); every
//     subsequent new root opens a sub-branch under the mainline sentinel
//     base 0.
//   - left-hand parent's "first child" slot (is_first_child) is free:
//     continue its line, incrementing the last component.
//   - otherwise: open a new sub-branch rooted at the left-hand parent
//     revno's first component.
//
// is_first_child has to be decided when a node is discovered, not when
// it is emitted: the walk emits a node's merge parents before the node
// itself (they are pushed above its emit task), so a merge parent sharing the
// same left-hand parent as the mainline child would otherwise reach
// assign first and steal the continuation. lhClaimed is therefore set by
// the caller's discovery step (claimFirstChild), and assign only
// consults it.
type branchAllocator struct {
	lhClaimed   map[types.DBID]bool
	branchCount map[int]int
	mainlineSet bool
}

func newBranchAllocator() *branchAllocator {
	return &branchAllocator{
		lhClaimed:   make(map[types.DBID]bool),
		branchCount: make(map[int]int),
	}
}

func (a *branchAllocator) seedBranchCount(base, n int) {
	if a.branchCount[base] < n {
		a.branchCount[base] = n
	}
}

// claimFirstChild records dbid as lhParent's first child if nobody has
// claimed that slot yet, and reports whether the claim succeeded. Must be
// called once per dbid at discovery time, before any of dbid's ancestors
// are emitted.
func (a *branchAllocator) claimFirstChild(lhParent types.DBID) bool {
	if a.lhClaimed[lhParent] {
		return false
	}
	a.lhClaimed[lhParent] = true
	return true
}

func (a *branchAllocator) assign(hasLH, continuesLH bool, parentRevno types.DottedRevno) types.DottedRevno {
	if !hasLH {
		if !a.mainlineSet {
			a.mainlineSet = true
			return types.DottedRevno{1}
		}
		a.branchCount[types.MainlineBranch]++
		return types.DottedRevno{types.MainlineBranch, a.branchCount[types.MainlineBranch], 1}
	}

	if continuesLH {
		next := make(types.DottedRevno, len(parentRevno))
		copy(next, parentRevno)
		next[len(next)-1]++
		if len(next) == 1 {
			a.mainlineSet = true
		}
		return next
	}

	base := parentRevno.Base()
	a.branchCount[base]++
	return types.DottedRevno{base, a.branchCount[base], 1}
}

// endOfMerge decides a single node's EndOfMerge flag (spec.md §4.5): true
// iff there is no successor, the successor is at a lesser merge depth, or
// the successor is not one of this node's parents at the same depth.
func endOfMerge(curDepth int, curParents []types.DBID, hasNext bool, nextDBID types.DBID, nextDepth int) bool {
	if !hasNext {
		return true
	}
	if nextDepth < curDepth {
		return true
	}
	if nextDepth != curDepth {
		return false
	}
	for _, p := range curParents {
		if p == nextDBID {
			return false
		}
	}
	return true
}

// computeEndOfMerge fills EndOfMerge for a tip-first-ordered schedule
// that represents the whole history (FullMergeSorter): the oldest node
// has no successor at all.
func computeEndOfMerge(ctx context.Context, ordered []Node, parentsOf ParentsFunc) error {
	for i := range ordered {
		hasNext := i < len(ordered)-1
		var nextDBID types.DBID
		var nextDepth int
		if hasNext {
			nextDBID, nextDepth = ordered[i+1].DBID, ordered[i+1].MergeDepth
		}
		parents, err := parentsOf(ctx, ordered[i].DBID)
		if err != nil {
			return err
		}
		ordered[i].EndOfMerge = endOfMerge(ordered[i].MergeDepth, parents, hasNext, nextDBID, nextDepth)
	}
	return nil
}
