package mergesort

import (
	"context"
	"fmt"

	"github.com/jugmac00/revindex/internal/types"
)

// FindImportedAncestor implements spec.md §4.6 phase 1: walk left-hand
// parents from tip until a revision is found that is already the tip of
// some prior complete import (t_imp). ok is false if no such ancestor
// exists (tip's whole mainline is new, or it bottoms out at a ghost).
func FindImportedAncestor(ctx context.Context, tip types.DBID, parentsOf ParentsFunc, isImportedTip IsImportedTipFunc) (tImp types.DBID, ok bool, err error) {
	cur := tip
	for {
		imported, err := isImportedTip(ctx, cur)
		if err != nil {
			return 0, false, err
		}
		if imported {
			return cur, true, nil
		}
		parents, err := parentsOf(ctx, cur)
		if err != nil {
			return 0, false, err
		}
		if len(parents) == 0 {
			return 0, false, nil
		}
		cur = parents[0]
	}
}

// IncrementalSources bundles everything IncrementalMergeSorter needs
// beyond the ancestry graph itself: read access to the single fixed
// t_imp's already-persisted numbering. An Importer constructs this from
// its live Interner, ParentStore and the store's dotted_revno table.
type IncrementalSources struct {
	Parents         ParentsFunc
	IsGhost         GhostFunc
	GDFO            GDFOFunc
	Imported        ImportedFunc
	HistoricalRevno RevnoFunc
	FirstChildTaken FirstChildFunc
	BranchCount     BranchCountFunc
}

// IncrementalMergeSorter produces dotted revnos for every revision newly
// reachable from tip that was not already numbered under tImp (spec.md
// §4.6). hasTImp is false when tip has no prior imported ancestor at all,
// in which case every reachable revision is new and the result equals
// FullMergeSorter's. The two sorters each carry their own copy of the
// DFS loop.
//
// Phases 3-5 of spec.md §4.6 (gdfo filter, children filter, iterative
// dotted_revno paging) are a staged approximation of one fact: dotted_revno
// holds exactly one row per ancestor of t_imp, scoped by tip, so "is dbid
// already numbered under t_imp" is a single indexed lookup
// (idx_dotted_revno_tip_merged). This implementation uses that lookup
// directly (src.Imported), pre-filtered by the cheap gdfo comparison to
// avoid a database round trip for revisions that obviously postdate
// t_imp. The net classification is identical; only the staged batch
// loading is collapsed into point queries.
func IncrementalMergeSorter(ctx context.Context, tip, tImp types.DBID, hasTImp bool, gdfoTImp int, src IncrementalSources) ([]Node, error) {
	classified := make(map[types.DBID]bool)
	classify := func(dbid types.DBID) (bool, error) {
		if v, ok := classified[dbid]; ok {
			return v, nil
		}
		interesting := true
		if hasTImp {
			gdfo, err := src.GDFO(ctx, dbid)
			if err != nil {
				return false, err
			}
			// tImp itself always has gdfo == gdfoTImp and is always
			// already imported, so the tie must fall into the Imported
			// check too, not be assumed new.
			if gdfo <= gdfoTImp {
				imported, err := src.Imported(ctx, dbid)
				if err != nil {
					return false, err
				}
				interesting = !imported
			}
		}
		classified[dbid] = interesting
		return interesting, nil
	}

	alloc := newBranchAllocator()
	alloc.mainlineSet = hasTImp // a prior tip means mainline revno 1 already exists somewhere.
	seededBases := make(map[int]bool)
	ensureBranchSeed := func(base int) error {
		if seededBases[base] {
			return nil
		}
		seededBases[base] = true
		n, err := src.BranchCount(ctx, base)
		if err != nil {
			return err
		}
		alloc.seedBranchCount(base, n)
		return nil
	}

	revnoOf := make(map[types.DBID]types.DottedRevno)
	resolveRevno := func(dbid types.DBID) (types.DottedRevno, error) {
		if r, ok := revnoOf[dbid]; ok {
			return r, nil
		}
		r, ok, err := src.HistoricalRevno(ctx, dbid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("revindex: db_id %d has no historical revno under tip %d: %w", dbid, tImp, types.ErrCorruptIndex)
		}
		return r, nil
	}

	// claimFirstChild must run at discovery time, not at emit time: see
	// node.go's branchAllocator doc comment for why. A node's historical
	// claim (src.FirstChildTaken) is consulted lazily, the first time any
	// candidate child of that parent is discovered this walk.
	claimFirstChild := func(lhParent types.DBID) (bool, error) {
		if alloc.lhClaimed[lhParent] {
			return false, nil
		}
		taken, err := src.FirstChildTaken(ctx, lhParent)
		if err != nil {
			return false, err
		}
		if taken {
			alloc.lhClaimed[lhParent] = true
			return false, nil
		}
		alloc.lhClaimed[lhParent] = true
		return true, nil
	}

	continuesLH := make(map[types.DBID]bool)

	type task struct {
		dbid  types.DBID
		depth int
		emit  bool
	}

	discovered := make(map[types.DBID]int)
	var schedule []Node
	stack := []task{{dbid: tip, depth: 0}}

	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.emit {
			lhParent, hasLH, _, err := filteredParents(ctx, t.dbid, src.Parents, src.IsGhost)
			if err != nil {
				return nil, err
			}

			var revno types.DottedRevno
			if !hasLH {
				if err := ensureBranchSeed(types.MainlineBranch); err != nil {
					return nil, err
				}
				revno = alloc.assign(false, false, nil)
			} else {
				parentRevno, err := resolveRevno(lhParent)
				if err != nil {
					return nil, err
				}
				cont := continuesLH[t.dbid]
				if !cont {
					if err := ensureBranchSeed(parentRevno.Base()); err != nil {
						return nil, err
					}
				}
				revno = alloc.assign(true, cont, parentRevno)
			}

			revnoOf[t.dbid] = revno
			schedule = append(schedule, Node{DBID: t.dbid, Revno: revno, MergeDepth: t.depth})
			continue
		}

		if _, seen := discovered[t.dbid]; seen {
			continue
		}
		discovered[t.dbid] = t.depth

		lhParent, hasLH, others, err := filteredParents(ctx, t.dbid, src.Parents, src.IsGhost)
		if err != nil {
			return nil, err
		}
		if hasLH {
			cont, err := claimFirstChild(lhParent)
			if err != nil {
				return nil, err
			}
			continuesLH[t.dbid] = cont
		}

		stack = append(stack, task{dbid: t.dbid, depth: t.depth, emit: true})
		for i := len(others) - 1; i >= 0; i-- {
			o := others[i]
			if _, seen := discovered[o]; seen {
				continue
			}
			interesting, err := classify(o)
			if err != nil {
				return nil, err
			}
			if interesting {
				stack = append(stack, task{dbid: o, depth: t.depth + 1})
			}
		}
		if hasLH {
			if _, seen := discovered[lhParent]; !seen {
				interesting, err := classify(lhParent)
				if err != nil {
					return nil, err
				}
				if interesting {
					stack = append(stack, task{dbid: lhParent, depth: t.depth})
				}
			}
		}
	}

	ordered := make([]Node, len(schedule))
	for i, n := range schedule {
		ordered[len(schedule)-1-i] = n
	}
	for i := range ordered {
		ordered[i].Dist = i
	}

	if err := incrementalEndOfMerge(ctx, ordered, src.Parents, tImp, hasTImp); err != nil {
		return nil, err
	}
	return ordered, nil
}

// incrementalEndOfMerge is computeEndOfMerge (node.go) generalized so the
// oldest newly-scheduled node compares against t_imp -- the revision that
// immediately follows it in the true tip-first order -- rather than
// being unconditionally treated as the end of the stream.
func incrementalEndOfMerge(ctx context.Context, ordered []Node, parentsOf ParentsFunc, tImp types.DBID, hasTImp bool) error {
	for i := range ordered {
		hasNext := i < len(ordered)-1
		var nextDBID types.DBID
		var nextDepth int
		switch {
		case hasNext:
			nextDBID, nextDepth = ordered[i+1].DBID, ordered[i+1].MergeDepth
		case hasTImp:
			hasNext, nextDBID, nextDepth = true, tImp, 0
		}
		parents, err := parentsOf(ctx, ordered[i].DBID)
		if err != nil {
			return err
		}
		ordered[i].EndOfMerge = endOfMerge(ordered[i].MergeDepth, parents, hasNext, nextDBID, nextDepth)
	}
	return nil
}
