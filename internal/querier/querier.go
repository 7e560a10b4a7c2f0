// Package querier implements the read path (spec.md §4.8): lookups
// against already-persisted dotted_revno/mainline_parent_range rows,
// transparently triggering an import through ensureBranchTip when the
// oracle's current tip has not been indexed yet.
package querier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jugmac00/revindex/internal/importer"
	"github.com/jugmac00/revindex/internal/intern"
	"github.com/jugmac00/revindex/internal/mainline"
	"github.com/jugmac00/revindex/internal/oracle"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

// Querier answers read-only questions about one Store. It shares the
// Store's connection pool with the Importer it wraps; its queries run
// directly against that pool, outside any explicit transaction.
type Querier struct {
	store    *store.Store
	interner *intern.Interner
	mainline *mainline.Cache
	importer *importer.Importer
	oracle   oracle.RepositoryOracle
}

// New builds a Querier. mainlineRangeLen <= 0 falls back to
// types.DefaultMainlineRangeLen.
func New(s *store.Store, imp *importer.Importer, o oracle.RepositoryOracle, mainlineRangeLen int) *Querier {
	q := s.DB()
	in := intern.New(q)
	ps := intern.NewParentStore(q)
	return &Querier{
		store:    s,
		interner: in,
		mainline: mainline.New(q, ps, mainlineRangeLen),
		importer: imp,
		oracle:   o,
	}
}

// ensureBranchTip implements spec.md §4.8's precondition: if the
// oracle's current tip is not yet a known imported tip, it is imported
// (under the writer lock, via Importer) before any read proceeds.
func (q *Querier) ensureBranchTip(ctx context.Context) (types.DBID, error) {
	tipRevID, err := q.oracle.TipRevisionID(ctx)
	if err != nil {
		return 0, oracle.Wrap(err)
	}

	tipDBID, err := q.interner.LookupDBID(ctx, tipRevID)
	switch {
	case err == nil:
		imported, err := q.store.IsImportedTip(ctx, q.store.DB(), tipDBID)
		if err != nil {
			return 0, err
		}
		if imported {
			return tipDBID, nil
		}
	case !errors.Is(err, types.ErrNotFound):
		return 0, err
	}

	result, err := q.importer.Import(ctx, q.oracle, nil)
	if err != nil {
		return 0, err
	}
	return result.Tip, nil
}

// Row is one resolved dotted_revno entry, keyed by the caller's own
// RevID rather than the internal DBID (spec.md §9's "explicit row
// record type" re-architecture).
type Row struct {
	RevisionID types.RevID
	Revno      types.DottedRevno
	MergeDepth int
	EndOfMerge bool
	Dist       int
}

// GetDottedRevnos resolves revno for each of ids under the current tip.
// Unresolvable ids (never interned, or not an ancestor of the tip) are
// simply absent from the result. Point lookups against
// idx_dotted_revno_tip_merged are used directly rather than walking
// mainline_parent_range blocks: that index already makes "does tip's
// ancestry contain merged" an O(log n) membership test regardless of
// whether merged is on the mainline, so range-jumping would only add
// overhead here. This means spec.md §8/S6's O(ranges) mainline-jump
// bound is not exercised by this method; it is satisfied by
// WalkMainline, the one caller that actually walks
// mainline_parent_range blocks (GetMainlineWhereMerged below resolves
// each id with direct dotted_revno point queries, not range jumps).
func (q *Querier) GetDottedRevnos(ctx context.Context, ids []types.RevID) (map[types.RevID]types.DottedRevno, error) {
	tip, err := q.ensureBranchTip(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[types.RevID]types.DottedRevno, len(ids))
	for _, id := range ids {
		dbid, err := q.interner.LookupDBID(ctx, id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		revno, ok, err := q.revnoFor(ctx, tip, dbid)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = revno
		}
	}
	return out, nil
}

func (q *Querier) revnoFor(ctx context.Context, tip, dbid types.DBID) (types.DottedRevno, bool, error) {
	var raw string
	err := q.store.DB().QueryRowContext(ctx,
		`SELECT revno FROM dotted_revno WHERE tip = ? AND merged = ?`, tip, dbid).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("revindex: loading revno for db_id %d under tip %d: %w", dbid, tip, err)
	}
	revno, err := types.ParseDottedRevno(raw)
	if err != nil {
		return nil, false, fmt.Errorf("revindex: %w: revno %q under tip %d", types.ErrCorruptIndex, raw, tip)
	}
	return revno, true, nil
}

// GetRevisionIDs is GetDottedRevnos's inverse: resolves the revision id
// for each requested revno, keyed by its rendered string.
func (q *Querier) GetRevisionIDs(ctx context.Context, revnos []types.DottedRevno) (map[string]types.RevID, error) {
	tip, err := q.ensureBranchTip(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.RevID, len(revnos))
	for _, revno := range revnos {
		var dbid types.DBID
		err := q.store.DB().QueryRowContext(ctx,
			`SELECT merged FROM dotted_revno WHERE tip = ? AND revno = ?`, tip, revno.String()).Scan(&dbid)
		switch {
		case err == sql.ErrNoRows:
			continue
		case err != nil:
			return nil, fmt.Errorf("revindex: resolving revno %s under tip %d: %w", revno, tip, err)
		}
		revID, err := q.interner.LookupRevID(ctx, dbid)
		if err != nil {
			return nil, err
		}
		out[revno.String()] = revID
	}
	return out, nil
}

// GetMainlineWhereMerged answers, for each requested id, which mainline
// (merge_depth 0) revision under the current tip incorporated it: the
// nearest depth-0 row at or before its own position in dist order
// (dist counts down from the tip, so "before" means numerically <=).
func (q *Querier) GetMainlineWhereMerged(ctx context.Context, ids []types.RevID) (map[types.RevID]types.RevID, error) {
	tip, err := q.ensureBranchTip(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[types.RevID]types.RevID, len(ids))
	for _, id := range ids {
		dbid, err := q.interner.LookupDBID(ctx, id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var dist int
		err = q.store.DB().QueryRowContext(ctx,
			`SELECT dist FROM dotted_revno WHERE tip = ? AND merged = ?`, tip, dbid).Scan(&dist)
		switch {
		case err == sql.ErrNoRows:
			continue
		case err != nil:
			return nil, fmt.Errorf("revindex: locating db_id %d under tip %d: %w", dbid, tip, err)
		}
		var mainlineDBID types.DBID
		err = q.store.DB().QueryRowContext(ctx,
			`SELECT merged FROM dotted_revno WHERE tip = ? AND merge_depth = 0 AND dist <= ? ORDER BY dist DESC LIMIT 1`,
			tip, dist).Scan(&mainlineDBID)
		switch {
		case err == sql.ErrNoRows:
			continue
		case err != nil:
			return nil, fmt.Errorf("revindex: finding mainline ancestor of db_id %d under tip %d: %w", dbid, tip, err)
		}
		revID, err := q.interner.LookupRevID(ctx, mainlineDBID)
		if err != nil {
			return nil, err
		}
		out[id] = revID
	}
	return out, nil
}

// Cursor is a pull-style iterator over dotted_revno rows in dist order
// (spec.md §9's "lazy generator" re-architecture: an explicit object
// with Next/Close instead of a language-level generator).
type Cursor struct {
	q      *Querier
	tip    types.DBID
	rows   *sql.Rows
	closed bool
}

// Next advances the cursor. ok is false once exhausted; err is non-nil
// only on a genuine failure.
func (c *Cursor) Next(ctx context.Context) (row Row, ok bool, err error) {
	if c.closed || !c.rows.Next() {
		return Row{}, false, c.rows.Err()
	}
	var (
		merged     types.DBID
		raw        string
		endOfMerge int
		mergeDepth int
		dist       int
	)
	if err := c.rows.Scan(&merged, &raw, &endOfMerge, &mergeDepth, &dist); err != nil {
		return Row{}, false, fmt.Errorf("revindex: scanning merge-sorted row under tip %d: %w", c.tip, err)
	}
	revno, err := types.ParseDottedRevno(raw)
	if err != nil {
		return Row{}, false, fmt.Errorf("revindex: %w: revno %q under tip %d", types.ErrCorruptIndex, raw, c.tip)
	}
	revID, err := c.q.interner.LookupRevID(ctx, merged)
	if err != nil {
		return Row{}, false, err
	}
	return Row{
		RevisionID: revID,
		Revno:      revno,
		MergeDepth: mergeDepth,
		EndOfMerge: endOfMerge != 0,
		Dist:       dist,
	}, true, nil
}

// Close releases the cursor's underlying result set. Safe to call more
// than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// IterMergeSortedRevisions streams dotted_revno rows for the current
// tip in dist order (tip-first), beginning at start and stopping before
// stop (exclusive), per spec.md §4.8. A zero RevID for stop streams to
// the end of history.
func (q *Querier) IterMergeSortedRevisions(ctx context.Context, start, stop types.RevID) (*Cursor, error) {
	tip, err := q.ensureBranchTip(ctx)
	if err != nil {
		return nil, err
	}

	startDist := 0
	if start != "" {
		startDBID, err := q.interner.LookupDBID(ctx, start)
		if err != nil {
			return nil, err
		}
		if err := q.store.DB().QueryRowContext(ctx,
			`SELECT dist FROM dotted_revno WHERE tip = ? AND merged = ?`, tip, startDBID).Scan(&startDist); err != nil {
			return nil, fmt.Errorf("revindex: locating stream start under tip %d: %w", tip, err)
		}
	}

	query := `SELECT merged, revno, end_of_merge, merge_depth, dist FROM dotted_revno WHERE tip = ? AND dist >= ?`
	args := []any{tip, startDist}
	if stop != "" {
		stopDBID, err := q.interner.LookupDBID(ctx, stop)
		if err != nil {
			return nil, err
		}
		var stopDist int
		if err := q.store.DB().QueryRowContext(ctx,
			`SELECT dist FROM dotted_revno WHERE tip = ? AND merged = ?`, tip, stopDBID).Scan(&stopDist); err != nil {
			return nil, fmt.Errorf("revindex: locating stream stop under tip %d: %w", tip, err)
		}
		query += ` AND dist < ?`
		args = append(args, stopDist)
	}
	query += ` ORDER BY dist ASC`

	rows, err := q.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("revindex: streaming merge-sorted rows under tip %d: %w", tip, err)
	}
	return &Cursor{q: q, tip: tip, rows: rows}, nil
}

// WalkMainline streams the current tip's mainline (merge_depth 0
// ancestors) tip-first, jumping via mainline_parent_range blocks rather
// than stepping one left-hand parent at a time (spec.md §4.8, §8's S6
// range-chunking property: O(ceil(length/mainline_range_len)) jumps).
func (q *Querier) WalkMainline(ctx context.Context) ([]types.RevID, error) {
	tip, err := q.ensureBranchTip(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.RevID
	cur := tip
	for {
		r, ok, err := q.mainline.RangeForHead(ctx, cur)
		if !ok {
			if err != nil {
				return nil, err
			}
			break
		}
		if err != nil {
			return nil, err
		}
		members, err := q.mainline.Members(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			revID, err := q.interner.LookupRevID(ctx, m)
			if err != nil {
				return nil, err
			}
			out = append(out, revID)
		}
		if !r.HasTail {
			break
		}
		cur = r.Tail
	}
	return out, nil
}

// WalkAncestry streams every revision in the current tip's full
// ancestry (every merge_depth), tip-first by dist.
func (q *Querier) WalkAncestry(ctx context.Context) (*Cursor, error) {
	return q.IterMergeSortedRevisions(ctx, "", "")
}
