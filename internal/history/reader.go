// Package history reads persisted dotted_revno rows on behalf of
// IncrementalMergeSorter (spec.md §4.6). Every query here is scoped to a
// single fixed tip (t_imp), the nearest already-imported ancestor of the
// branch currently being indexed.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jugmac00/revindex/internal/intern"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

// Reader answers questions about a prior tip's already-persisted
// numbering, backed by the same connection/transaction the current
// import is running under.
type Reader struct {
	q       store.Queryer
	parents *intern.ParentStore
}

// NewReader wraps q (and the parent-edge reader, for first-child checks).
func NewReader(q store.Queryer, parents *intern.ParentStore) *Reader {
	return &Reader{q: q, parents: parents}
}

// Scoped fixes every query to tip.
func (r *Reader) Scoped(tip types.DBID) *ScopedReader {
	return &ScopedReader{r: r, tip: tip}
}

// ScopedReader is a Reader bound to one t_imp.
type ScopedReader struct {
	r   *Reader
	tip types.DBID
}

// Imported reports whether dbid already has a dotted_revno row under
// this tip.
func (s *ScopedReader) Imported(ctx context.Context, dbid types.DBID) (bool, error) {
	var x int
	err := s.r.q.QueryRowContext(ctx,
		`SELECT 1 FROM dotted_revno WHERE tip = ? AND merged = ? LIMIT 1`, s.tip, dbid).Scan(&x)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("revindex: checking historical membership of db_id %d under tip %d: %w", dbid, s.tip, err)
	default:
		return true, nil
	}
}

// Revno returns dbid's already-persisted dotted revno under this tip.
func (s *ScopedReader) Revno(ctx context.Context, dbid types.DBID) (types.DottedRevno, bool, error) {
	var raw string
	err := s.r.q.QueryRowContext(ctx,
		`SELECT revno FROM dotted_revno WHERE tip = ? AND merged = ?`, s.tip, dbid).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("revindex: loading historical revno of db_id %d under tip %d: %w", dbid, s.tip, err)
	}
	revno, err := types.ParseDottedRevno(raw)
	if err != nil {
		return nil, false, fmt.Errorf("revindex: %w: db_id %d under tip %d: %s", types.ErrCorruptIndex, dbid, s.tip, err)
	}
	return revno, true, nil
}

// FirstChildTaken reports whether some historical revision under this
// tip already has parent as its left-hand parent (spec.md §4.6's
// is_first_child, historical half).
func (s *ScopedReader) FirstChildTaken(ctx context.Context, parent types.DBID) (bool, error) {
	children, err := s.r.parents.GetChildren(ctx, parent)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		lh, hasLH, err := s.r.parents.GetLHParent(ctx, child)
		if err != nil {
			return false, err
		}
		if !hasLH || lh != parent {
			continue
		}
		imported, err := s.Imported(ctx, child)
		if err != nil {
			return false, err
		}
		if imported {
			return true, nil
		}
	}
	return false, nil
}

// BranchCount returns how many sub-branches are already rooted at base
// under this tip's historical numbering (spec.md §4.6's
// step_to_latest_branch), by scanning every persisted revno with that
// first component.
func (s *ScopedReader) BranchCount(ctx context.Context, base int) (int, error) {
	prefix := strconv.Itoa(base) + "."
	rows, err := s.r.q.QueryContext(ctx,
		`SELECT revno FROM dotted_revno WHERE tip = ? AND revno LIKE ? || '%'`, s.tip, prefix)
	if err != nil {
		return 0, fmt.Errorf("revindex: loading branch counts at base %d under tip %d: %w", base, s.tip, err)
	}
	defer rows.Close()

	max := 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, fmt.Errorf("revindex: scanning branch count row under tip %d: %w", s.tip, err)
		}
		revno, err := types.ParseDottedRevno(raw)
		if err != nil {
			return 0, fmt.Errorf("revindex: %w: revno %q under tip %d: %s", types.ErrCorruptIndex, raw, s.tip, err)
		}
		if len(revno) < 2 || revno.Base() != base {
			continue
		}
		if revno.Branch() > max {
			max = revno.Branch()
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("revindex: iterating branch counts at base %d under tip %d: %w", base, s.tip, err)
	}
	return max, nil
}
