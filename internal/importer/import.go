// Package importer orchestrates one tip import end to end (spec.md
// §4.7): ancestry discovery against a RepositoryOracle, merge-sort
// numbering, persistence, and mainline range extension, all inside one
// BEGIN IMMEDIATE transaction guarded by the single-writer lock.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jugmac00/revindex/internal/history"
	"github.com/jugmac00/revindex/internal/intern"
	"github.com/jugmac00/revindex/internal/mainline"
	"github.com/jugmac00/revindex/internal/mergesort"
	"github.com/jugmac00/revindex/internal/oracle"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

// ErrCanceled is returned when a ProgressFunc requests cancellation. It
// is not one of spec.md §7's error kinds: it is a control-flow signal,
// not a data-integrity error, and is never wrapped as one.
var ErrCanceled = errors.New("revindex: import canceled")

// ProgressFunc is consulted periodically during an import; returning
// true cancels it. It must never affect correctness: the only possible
// outcomes of calling it are "continue" or "roll back everything."
type ProgressFunc func(stage string, processed int) (cancel bool)

// Outcome distinguishes a fresh import from a no-op repeat, replacing
// exception-driven "already imported" control flow (spec.md §9).
type Outcome int

const (
	// Inserted means new dotted_revno rows were committed for this tip.
	Inserted Outcome = iota
	// AlreadyPresent means tip was already a fully-imported tip; nothing
	// was written (spec.md §8 invariant 2, idempotence).
	AlreadyPresent
	// ConcurrentlyImported means another writer produced equivalent data
	// for this tip concurrently with us; our transaction rolled back
	// without error (spec.md §7's ConcurrentWriter recovery).
	ConcurrentlyImported
)

// String renders the outcome by name.
func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "Inserted"
	case AlreadyPresent:
		return "AlreadyPresent"
	case ConcurrentlyImported:
		return "ConcurrentlyImported"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Config carries the options named in spec.md §6.
type Config struct {
	Incremental       bool
	Validate          bool
	MaxCacheSizeBytes int64
	MainlineRangeLen  int
}

// Importer runs tip imports against one Store, serialized by lock.
type Importer struct {
	store  *store.Store
	lock   *WriterLock
	cfg    Config
	logger *slog.Logger
}

// New creates an Importer. logger may be nil, in which case slog.Default
// is used.
func New(s *store.Store, lock *WriterLock, cfg Config, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MainlineRangeLen <= 0 {
		cfg.MainlineRangeLen = types.DefaultMainlineRangeLen
	}
	return &Importer{store: s, lock: lock, cfg: cfg, logger: logger}
}

// Result reports what an Import call did.
type Result struct {
	Tip     types.DBID
	Outcome Outcome
}

// Import runs one full tip import from o (spec.md §4.7's seven steps).
func (imp *Importer) Import(ctx context.Context, o oracle.RepositoryOracle, progress ProgressFunc) (Result, error) {
	release, err := imp.lock.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer release()

	tipRevID, err := o.TipRevisionID(ctx)
	if err != nil {
		return Result{}, oracle.Wrap(err)
	}

	var result Result
	err = imp.store.WithWriteTx(ctx, func(ctx context.Context, q store.Queryer) error {
		in := intern.New(q)
		ps := intern.NewParentStore(q)

		tipDBID, err := in.Intern(ctx, tipRevID)
		if err != nil {
			return err
		}

		already, err := imp.store.IsImportedTip(ctx, q, tipDBID)
		if err != nil {
			return err
		}
		if already {
			imp.logger.Debug("tip already imported", "tip", tipRevID)
			result = Result{Tip: tipDBID, Outcome: AlreadyPresent}
			return nil
		}

		discovery, err := findKnownAncestors(ctx, o, in, tipRevID, func(n int) bool {
			return progress != nil && progress("discover", n)
		})
		if err != nil {
			return err
		}
		if _, err := persistAncestry(ctx, in, ps, discovery); err != nil {
			return err
		}

		nodes, tImp, hasTImp, err := imp.runMergeSort(ctx, q, in, ps, tipDBID)
		if err != nil {
			return err
		}

		if imp.cfg.Validate {
			if err := imp.validateAgainstFull(ctx, in, ps, tipDBID, tImp, hasTImp, nodes); err != nil {
				return err
			}
		}

		outcome, err := imp.insertDottedRevnos(ctx, q, tipDBID, tImp, hasTImp, nodes)
		if err != nil {
			return err
		}
		if outcome == ConcurrentlyImported {
			imp.logger.Warn("concurrent writer already imported this tip", "tip", tipRevID)
			result = Result{Tip: tipDBID, Outcome: ConcurrentlyImported}
			// Returning an error rolls the transaction back; it is
			// turned back into success below.
			return types.ErrConcurrentWriter
		}

		cache := mainline.New(q, ps, imp.cfg.MainlineRangeLen)
		if err := cache.Extend(ctx, tipDBID); err != nil {
			return err
		}

		imp.logger.Info("tip imported", "tip", tipRevID, "revisions_numbered", len(nodes))
		result = Result{Tip: tipDBID, Outcome: Inserted}
		return nil
	})
	if errors.Is(err, types.ErrConcurrentWriter) {
		return result, nil
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// runMergeSort picks Full or IncrementalMergeSorter per cfg.Incremental
// and the presence of a prior tip (spec.md §4.7 step 4).
func (imp *Importer) runMergeSort(ctx context.Context, q store.Queryer, in *intern.Interner, ps *intern.ParentStore, tip types.DBID) ([]mergesort.Node, types.DBID, bool, error) {
	parentsOf := func(ctx context.Context, dbid types.DBID) ([]types.DBID, error) { return ps.GetParents(ctx, dbid) }
	isGhost := func(ctx context.Context, dbid types.DBID) (bool, error) { return in.IsGhost(ctx, dbid) }

	if !imp.cfg.Incremental {
		nodes, err := mergesort.FullMergeSorter(ctx, tip, parentsOf, isGhost)
		return nodes, 0, false, err
	}

	isImportedTip := func(ctx context.Context, dbid types.DBID) (bool, error) {
		return imp.store.IsImportedTip(ctx, q, dbid)
	}
	tImp, hasTImp, err := mergesort.FindImportedAncestor(ctx, tip, parentsOf, isImportedTip)
	if err != nil {
		return nil, 0, false, err
	}
	if !hasTImp {
		nodes, err := mergesort.FullMergeSorter(ctx, tip, parentsOf, isGhost)
		return nodes, 0, false, err
	}

	gdfoTImp, err := in.LoadGDFO(ctx, tImp)
	if err != nil {
		return nil, 0, false, err
	}

	reader := history.NewReader(q, ps).Scoped(tImp)
	src := mergesort.IncrementalSources{
		Parents:         parentsOf,
		IsGhost:         isGhost,
		GDFO:            func(ctx context.Context, dbid types.DBID) (int, error) { return in.LoadGDFO(ctx, dbid) },
		Imported:        reader.Imported,
		HistoricalRevno: reader.Revno,
		FirstChildTaken: reader.FirstChildTaken,
		BranchCount:     reader.BranchCount,
	}
	nodes, err := mergesort.IncrementalMergeSorter(ctx, tip, tImp, true, gdfoTImp, src)
	return nodes, tImp, true, err
}

// validateAgainstFull implements spec.md §6's validate option: recompute
// the entire ancestry with FullMergeSorter and assert it produces the
// same revno for every newly-numbered node (the copied historical rows
// are untouched and so trivially agree).
func (imp *Importer) validateAgainstFull(ctx context.Context, in *intern.Interner, ps *intern.ParentStore, tip, tImp types.DBID, hasTImp bool, nodes []mergesort.Node) error {
	parentsOf := func(ctx context.Context, dbid types.DBID) ([]types.DBID, error) { return ps.GetParents(ctx, dbid) }
	isGhost := func(ctx context.Context, dbid types.DBID) (bool, error) { return in.IsGhost(ctx, dbid) }

	full, err := mergesort.FullMergeSorter(ctx, tip, parentsOf, isGhost)
	if err != nil {
		return err
	}
	want := make(map[types.DBID]types.DottedRevno, len(full))
	for _, n := range full {
		want[n.DBID] = n.Revno
	}
	for _, n := range nodes {
		w, ok := want[n.DBID]
		if !ok || !w.Equal(n.Revno) {
			return fmt.Errorf("revindex: incremental sort disagrees with full sort for db_id %d (got %s, want %s): %w",
				n.DBID, n.Revno, w, types.ErrCorruptIndex)
		}
	}
	return nil
}

// insertDottedRevnos persists nodes as tip's new dotted_revno rows, and
// copies tImp's existing rows forward under tip unchanged except for a
// dist shift (spec.md §4.7 step 5; see DESIGN.md for why revno,
// merge_depth and end_of_merge never need to change on copy). A unique
// violation on (tip, merged) is treated as ConcurrentWriter: the whole
// transaction rolls back and the import is reported as already done by
// someone else.
func (imp *Importer) insertDottedRevnos(ctx context.Context, q store.Queryer, tip, tImp types.DBID, hasTImp bool, nodes []mergesort.Node) (Outcome, error) {
	for _, n := range nodes {
		if err := insertDottedRow(ctx, q, tip, n.DBID, n.Revno, n.EndOfMerge, n.MergeDepth, n.Dist); err != nil {
			if isUniqueViolation(err) {
				return ConcurrentlyImported, nil
			}
			return 0, err
		}
	}

	if !hasTImp {
		return Inserted, nil
	}

	shift := len(nodes)
	rows, err := q.QueryContext(ctx,
		`SELECT merged, revno, end_of_merge, merge_depth, dist FROM dotted_revno WHERE tip = ? ORDER BY dist ASC`, tImp)
	if err != nil {
		return 0, fmt.Errorf("revindex: loading rows to copy from tip %d: %w", tImp, err)
	}
	type copyRow struct {
		merged     types.DBID
		revno      string
		endOfMerge bool
		mergeDepth int
		dist       int
	}
	var toCopy []copyRow
	for rows.Next() {
		var (
			merged           types.DBID
			revno            string
			endOfMerge       int
			mergeDepth, dist int
		)
		if err := rows.Scan(&merged, &revno, &endOfMerge, &mergeDepth, &dist); err != nil {
			rows.Close()
			return 0, fmt.Errorf("revindex: scanning row to copy from tip %d: %w", tImp, err)
		}
		toCopy = append(toCopy, copyRow{merged, revno, endOfMerge != 0, mergeDepth, dist})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("revindex: iterating rows to copy from tip %d: %w", tImp, err)
	}
	rows.Close()

	for _, r := range toCopy {
		revno, err := types.ParseDottedRevno(r.revno)
		if err != nil {
			return 0, fmt.Errorf("revindex: %w: copying revno %q from tip %d", types.ErrCorruptIndex, r.revno, tImp)
		}
		if err := insertDottedRow(ctx, q, tip, r.merged, revno, r.endOfMerge, r.mergeDepth, shift+r.dist); err != nil {
			if isUniqueViolation(err) {
				return ConcurrentlyImported, nil
			}
			return 0, err
		}
	}
	return Inserted, nil
}

func insertDottedRow(ctx context.Context, q store.Queryer, tip, merged types.DBID, revno types.DottedRevno, endOfMerge bool, mergeDepth, dist int) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO dotted_revno (tip, merged, revno, end_of_merge, merge_depth, dist) VALUES (?, ?, ?, ?, ?, ?)`,
		tip, merged, revno.String(), boolToInt(endOfMerge), mergeDepth, dist)
	if err != nil {
		return fmt.Errorf("revindex: inserting dotted_revno for tip %d merged %d: %w", tip, merged, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
