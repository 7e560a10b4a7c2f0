package mergesort

import (
	"context"

	"github.com/jugmac00/revindex/internal/types"
)

// FullMergeSorter walks the entire ancestry of tip and assigns dotted
// revnos from scratch (spec.md §4.5). It is used to bootstrap a branch
// that has never been imported, and to recompute a reference ordering
// during validation (spec.md §6's validate option).
//
// The walk is the classical depth-first mainline walk: at each node, its
// left-hand parent is explored to completion first (so a linear mainline
// is discovered in one uninterrupted run), then its other parents are
// explored, each opening a new merge-depth level. A node is only emitted
// -- and assigned its revno -- once every one of its parents has already
// been emitted, which is what gives a merge parent a higher (older)
// position than the revision that merged it. The schedule this produces
// is oldest-first; FullMergeSorter reverses it so the tip comes first,
// which is the dist order of dotted_revno rows that
// Querier.IterMergeSortedRevisions streams.
func FullMergeSorter(ctx context.Context, tip types.DBID, parentsOf ParentsFunc, isGhost GhostFunc) ([]Node, error) {
	alloc := newBranchAllocator()
	revnoOf := make(map[types.DBID]types.DottedRevno)
	continuesLH := make(map[types.DBID]bool) // dbid -> claimed its left-hand parent's first-child slot
	discovered := make(map[types.DBID]int)   // dbid -> merge depth at first discovery

	type task struct {
		dbid  types.DBID
		depth int
		emit  bool
	}

	var schedule []Node
	stack := []task{{dbid: tip, depth: 0}}

	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.emit {
			lhParent, hasLH, _, err := filteredParents(ctx, t.dbid, parentsOf, isGhost)
			if err != nil {
				return nil, err
			}
			var parentRevno types.DottedRevno
			if hasLH {
				parentRevno = revnoOf[lhParent]
			}
			revno := alloc.assign(hasLH, continuesLH[t.dbid], parentRevno)
			revnoOf[t.dbid] = revno
			schedule = append(schedule, Node{
				DBID:       t.dbid,
				Revno:      revno,
				MergeDepth: t.depth,
			})
			continue
		}

		if _, seen := discovered[t.dbid]; seen {
			continue
		}
		discovered[t.dbid] = t.depth

		lhParent, hasLH, others, err := filteredParents(ctx, t.dbid, parentsOf, isGhost)
		if err != nil {
			return nil, err
		}
		// The first-child claim must happen now, at discovery, not when
		// t.dbid is emitted: a merge parent sharing this same left-hand
		// parent is emitted before t.dbid (it is pushed above t.dbid's own
		// emit task, so it is popped first) but is always discovered after it.
		if hasLH {
			continuesLH[t.dbid] = alloc.claimFirstChild(lhParent)
		}

		stack = append(stack, task{dbid: t.dbid, depth: t.depth, emit: true})
		for i := len(others) - 1; i >= 0; i-- {
			if _, seen := discovered[others[i]]; !seen {
				stack = append(stack, task{dbid: others[i], depth: t.depth + 1})
			}
		}
		if hasLH {
			if _, seen := discovered[lhParent]; !seen {
				stack = append(stack, task{dbid: lhParent, depth: t.depth})
			}
		}
	}

	// schedule is oldest-first (pop/emit order); reverse to tip-first.
	ordered := make([]Node, len(schedule))
	for i, n := range schedule {
		ordered[len(schedule)-1-i] = n
	}
	for i := range ordered {
		ordered[i].Dist = i
	}
	if err := computeEndOfMerge(ctx, ordered, parentsOf); err != nil {
		return nil, err
	}
	return ordered, nil
}
