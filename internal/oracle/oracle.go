// Package oracle defines RepositoryOracle, the abstract interface through
// which the indexer learns about revisions and their parents. Fetching
// real revision objects from a live VCS is out of scope for this
// repository (spec.md §1); the only concrete implementation shipped here
// is Memory, an in-memory fake for tests and the bootstrap CLI.
package oracle

import (
	"context"
	"fmt"

	"github.com/jugmac00/revindex/internal/types"
)

// RepositoryOracle is the pure interface the Importer consumes to
// discover ancestry. It never blocks on anything but its own
// implementation's I/O (network or disk in the host VCS).
type RepositoryOracle interface {
	// TipRevisionID returns the current tip of the branch being indexed.
	TipRevisionID(ctx context.Context) (types.RevID, error)

	// GetParentMap returns, for each requested revision, its ordered
	// parent list. A parent-less root maps to an empty (non-nil) slice.
	// A revision whose content is unknown (a ghost) is omitted from the
	// returned map entirely — its absence is how the caller distinguishes
	// "root" from "ghost".
	GetParentMap(ctx context.Context, ids []types.RevID) (map[types.RevID][]types.RevID, error)
}

// KnownGraphOracle is an optional extension: an oracle that can hand back
// a whole ancestry graph in one call. Nothing in this repository calls
// it: the Importer discovers ancestry through GetParentMap, and
// FullMergeSorter reads parent edges from the store's ParentStore.
type KnownGraphOracle interface {
	RepositoryOracle

	// GetKnownGraph returns the full parent map for the ancestry of tip,
	// equivalent to calling GetParentMap repeatedly until the frontier is
	// exhausted, but in one call.
	GetKnownGraph(ctx context.Context, tip types.RevID) (map[types.RevID][]types.RevID, error)
}

// Wrap annotates an error raised by a RepositoryOracle implementation as
// an OracleFailure, per spec.md §7.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", types.ErrOracleFailure, err)
}
