package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jugmac00/revindex/internal/intern"
	"github.com/jugmac00/revindex/internal/oracle"
	"github.com/jugmac00/revindex/internal/types"
)

// discoverBatchSize bounds how many revisions are asked of the oracle in
// one GetParentMap call.
const discoverBatchSize = 256

// discoverResult is the new subgraph found below tip, down to (but not
// including) any revision the store already knows about.
type discoverResult struct {
	// parents holds the ordered parent id list of every newly-discovered,
	// non-ghost revision.
	parents map[types.RevID][]types.RevID
	// ghosts holds every newly-discovered revision id the oracle could not
	// resolve parents for.
	ghosts map[types.RevID]bool
	// order lists every newly-discovered id (ghost or not) in discovery
	// order, so callers can report deterministic progress.
	order []types.RevID
}

// findKnownAncestors walks unknown parents upward from tip (spec.md
// §4.7 step 3), stopping expansion at any revision already interned (its
// own ancestry was fully recorded by a previous import). progress, if
// non-nil, is consulted once per batch; a true return cancels the walk.
func findKnownAncestors(ctx context.Context, o oracle.RepositoryOracle, in *intern.Interner, tip types.RevID, progress func(processed int) (cancel bool)) (discoverResult, error) {
	result := discoverResult{
		parents: make(map[types.RevID][]types.RevID),
		ghosts:  make(map[types.RevID]bool),
	}

	visited := map[types.RevID]bool{tip: true}
	queue := []types.RevID{tip}
	processed := 0

	for len(queue) > 0 {
		batchLen := discoverBatchSize
		if batchLen > len(queue) {
			batchLen = len(queue)
		}
		batch := queue[:batchLen]
		queue = queue[batchLen:]

		parentMap, err := o.GetParentMap(ctx, batch)
		if err != nil {
			return discoverResult{}, oracle.Wrap(err)
		}

		for _, rev := range batch {
			processed++
			parents, ok := parentMap[rev]
			if !ok {
				result.ghosts[rev] = true
				result.order = append(result.order, rev)
				continue
			}
			result.parents[rev] = parents
			result.order = append(result.order, rev)

			for _, p := range parents {
				if visited[p] {
					continue
				}
				visited[p] = true

				_, err := in.LookupDBID(ctx, p)
				switch {
				case err == nil:
					// Already interned by a previous import: its own
					// ancestry and gdfo are already recorded, no need to
					// walk further.
					continue
				case errors.Is(err, types.ErrNotFound):
					queue = append(queue, p)
				default:
					return discoverResult{}, err
				}
			}
		}

		if progress != nil && progress(processed) {
			return discoverResult{}, ErrCanceled
		}
	}

	return result, nil
}

// persistAncestry interns every newly-discovered revision, records parent edges
// and ghost flags, and computes gdfo bottom-up (1 for roots/ghosts, 1 +
// max(parent gdfo) otherwise) once all of a revision's parents have a
// known gdfo. Returns the db_id every discovered rev_id interned to.
func persistAncestry(ctx context.Context, in *intern.Interner, ps *intern.ParentStore, d discoverResult) (map[types.RevID]types.DBID, error) {
	dbids := make(map[types.RevID]types.DBID, len(d.order))
	for _, rev := range d.order {
		id, err := in.Intern(ctx, rev)
		if err != nil {
			return nil, err
		}
		dbids[rev] = id
	}

	for rev := range d.ghosts {
		if err := in.MarkGhost(ctx, dbids[rev]); err != nil {
			return nil, err
		}
	}

	parentDBIDs := make(map[types.RevID][]types.DBID, len(d.parents))
	for rev, parents := range d.parents {
		ids := make([]types.DBID, len(parents))
		for i, p := range parents {
			id, ok := dbids[p]
			if !ok {
				// p was already known before this import.
				var err error
				id, err = in.LookupDBID(ctx, p)
				if err != nil {
					return nil, err
				}
			}
			ids[i] = id
		}
		parentDBIDs[rev] = ids
		if err := ps.SetParents(ctx, dbids[rev], ids); err != nil {
			return nil, err
		}
	}

	gdfoOf := func(dbid types.DBID) (int, bool, error) {
		if g, ok := in.GDFO(dbid); ok {
			return g, true, nil
		}
		g, err := in.LoadGDFO(ctx, dbid)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if g <= 0 {
			// Interned this run with the 0 placeholder; not computed yet.
			return 0, false, nil
		}
		return g, true, nil
	}

	remaining := make(map[types.RevID]bool, len(d.parents))
	for rev := range d.parents {
		remaining[rev] = true
	}

	for len(remaining) > 0 {
		progressed := false
		for rev := range remaining {
			gdfo := 1
			ready := true
			for _, pid := range parentDBIDs[rev] {
				g, ok, err := gdfoOf(pid)
				if err != nil {
					return nil, err
				}
				if !ok {
					ready = false
					break
				}
				if g+1 > gdfo {
					gdfo = g + 1
				}
			}
			if !ready {
				continue
			}
			if err := in.SetGDFO(ctx, dbids[rev], gdfo); err != nil {
				return nil, err
			}
			delete(remaining, rev)
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("revindex: gdfo computation stalled on %d revisions: %w", len(remaining), types.ErrCorruptIndex)
		}
	}

	return dbids, nil
}
