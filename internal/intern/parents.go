package intern

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

// ParentStore persists ordered parent edges per revision (spec.md §4.3).
// Like Interner it is a thin write-through wrapper with no owned cache of
// its own beyond what callers keep; cycles are never checked directly
// here, they are ruled out structurally by gdfo strictly decreasing
// along every edge (enforced by the Importer during ancestry discovery).
type ParentStore struct {
	q store.Queryer
}

// NewParentStore wraps q.
func NewParentStore(q store.Queryer) *ParentStore {
	return &ParentStore{q: q}
}

// SetParents records child's ordered parent list, preserving parent_idx
// (0 == left-hand parent). Insert-or-ignore: calling this twice for the
// same child is a no-op the second time, matching the "written once,
// never mutated" lifecycle (spec.md §3).
func (p *ParentStore) SetParents(ctx context.Context, child types.DBID, parents []types.DBID) error {
	for idx, parent := range parents {
		_, err := p.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO parent (child, parent, parent_idx) VALUES (?, ?, ?)`,
			child, parent, idx)
		if err != nil {
			return fmt.Errorf("revindex: recording parent edge %d->%d (idx %d): %w", child, parent, idx, err)
		}
	}
	return nil
}

// GetParents returns child's ordered parent list (empty for a root).
func (p *ParentStore) GetParents(ctx context.Context, child types.DBID) ([]types.DBID, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT parent FROM parent WHERE child = ? ORDER BY parent_idx ASC`, child)
	if err != nil {
		return nil, fmt.Errorf("revindex: loading parents of db_id %d: %w", child, err)
	}
	defer rows.Close()

	var out []types.DBID
	for rows.Next() {
		var parent types.DBID
		if err := rows.Scan(&parent); err != nil {
			return nil, fmt.Errorf("revindex: scanning parent row of db_id %d: %w", child, err)
		}
		out = append(out, parent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revindex: iterating parents of db_id %d: %w", child, err)
	}
	return out, nil
}

// GetLHParent returns child's left-hand (parent_idx 0) parent, if any.
// The returned bool is false for a parent-less root. Note: a ghost
// left-hand parent is still returned here (the edge is structural); the
// merge-sorters are responsible for treating a ghost left-hand parent as
// "no parent" for numbering purposes (spec.md §4.6 edge cases).
func (p *ParentStore) GetLHParent(ctx context.Context, child types.DBID) (types.DBID, bool, error) {
	var parent types.DBID
	err := p.q.QueryRowContext(ctx,
		`SELECT parent FROM parent WHERE child = ? AND parent_idx = 0`, child).Scan(&parent)
	switch {
	case err == sql.ErrNoRows:
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("revindex: loading left-hand parent of db_id %d: %w", child, err)
	default:
		return parent, true, nil
	}
}

// GetChildren returns every revision that has parent as one of its
// parents, in no particular order. This resolves the ambiguity noted in
// spec.md §9 around the original's get_children query: there is exactly
// one filter parameter here, parent, and no second candidate column to
// confuse it with.
func (p *ParentStore) GetChildren(ctx context.Context, parent types.DBID) ([]types.DBID, error) {
	rows, err := p.q.QueryContext(ctx, `SELECT child FROM parent WHERE parent = ?`, parent)
	if err != nil {
		return nil, fmt.Errorf("revindex: loading children of db_id %d: %w", parent, err)
	}
	defer rows.Close()

	var out []types.DBID
	for rows.Next() {
		var child types.DBID
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("revindex: scanning child row of db_id %d: %w", parent, err)
		}
		out = append(out, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revindex: iterating children of db_id %d: %w", parent, err)
	}
	return out, nil
}
