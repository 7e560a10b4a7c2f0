// Package mainline implements MainlineRangeCache (spec.md §4.4): packed
// runs of left-hand-mainline ancestors that let the Querier jump over up
// to MAX_RANGE revisions per lookup instead of walking one parent at a
// time.
package mainline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jugmac00/revindex/internal/intern"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

// Cache reads and extends mainline_parent_range / mainline_parent.
type Cache struct {
	q        store.Queryer
	parents  *intern.ParentStore
	maxRange int
}

// New creates a Cache. maxRange <= 0 falls back to
// types.DefaultMainlineRangeLen.
func New(q store.Queryer, parents *intern.ParentStore, maxRange int) *Cache {
	if maxRange <= 0 {
		maxRange = types.DefaultMainlineRangeLen
	}
	return &Cache{q: q, parents: parents, maxRange: maxRange}
}

// Range is one persisted mainline_parent_range row.
type Range struct {
	ID      int64
	Head    types.DBID
	Tail    types.DBID
	HasTail bool
	Count   int
}

// RangeForHead returns the longest-count range whose head equals head,
// if any.
func (c *Cache) RangeForHead(ctx context.Context, head types.DBID) (Range, bool, error) {
	var r Range
	var tail sql.NullInt64
	err := c.q.QueryRowContext(ctx,
		`SELECT pkey, tail, count FROM mainline_parent_range WHERE head = ? ORDER BY count DESC LIMIT 1`,
		head).Scan(&r.ID, &tail, &r.Count)
	switch {
	case err == sql.ErrNoRows:
		return Range{}, false, nil
	case err != nil:
		return Range{}, false, fmt.Errorf("revindex: loading range for head %d: %w", head, err)
	}
	r.Head = head
	if tail.Valid {
		r.Tail = types.DBID(tail.Int64)
		r.HasTail = true
	}
	return r, true, nil
}

// Members returns rangeID's members ordered by dist ascending (head
// first).
func (c *Cache) Members(ctx context.Context, rangeID int64) ([]types.DBID, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT revision FROM mainline_parent WHERE range = ? ORDER BY dist ASC`, rangeID)
	if err != nil {
		return nil, fmt.Errorf("revindex: loading members of range %d: %w", rangeID, err)
	}
	defer rows.Close()

	var out []types.DBID
	for rows.Next() {
		var rev types.DBID
		if err := rows.Scan(&rev); err != nil {
			return nil, fmt.Errorf("revindex: scanning member of range %d: %w", rangeID, err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revindex: iterating members of range %d: %w", rangeID, err)
	}
	return out, nil
}

// Extend walks left-hand parents from head, absorbing any sub-maximal
// range already rooted further down the chain, then (re-)chunks the
// whole run into ranges of up to maxRange entries so that a subsequent
// walk from head consumes at most ceil(chain_length/maxRange) range
// lookups (spec.md §4.4).
func (c *Cache) Extend(ctx context.Context, head types.DBID) error {
	// newestFirst accumulates the revisions that need (re-)packing,
	// ordered from head (newest) towards the oldest revision reached.
	var newestFirst []types.DBID
	var stopAt types.DBID
	hasStop := false

	cur := head
	for {
		existing, ok, err := c.RangeForHead(ctx, cur)
		if err != nil {
			return err
		}
		if ok {
			if existing.Count < c.maxRange {
				members, err := c.Members(ctx, existing.ID)
				if err != nil {
					return err
				}
				newestFirst = append(newestFirst, members...)
				if existing.HasTail {
					cur = existing.Tail
					continue
				}
				hasStop = false
				break
			}
			// A full range already roots here: stop without
			// re-packing it.
			stopAt, hasStop = cur, true
			break
		}

		newestFirst = append(newestFirst, cur)
		lh, hasParent, err := c.parents.GetLHParent(ctx, cur)
		if err != nil {
			return err
		}
		if !hasParent {
			hasStop = false
			break
		}
		cur = lh
	}

	if len(newestFirst) == 0 {
		return nil
	}

	oldestFirst := make([]types.DBID, len(newestFirst))
	for i, rev := range newestFirst {
		oldestFirst[len(newestFirst)-1-i] = rev
	}

	for start := 0; start < len(oldestFirst); start += c.maxRange {
		end := start + c.maxRange
		if end > len(oldestFirst) {
			end = len(oldestFirst)
		}
		block := oldestFirst[start:end]

		var tail types.DBID
		tailValid := true
		if start == 0 {
			tail, tailValid = stopAt, hasStop
		} else {
			tail = oldestFirst[start-1]
		}

		res, err := c.q.ExecContext(ctx,
			`INSERT INTO mainline_parent_range (head, tail, count) VALUES (?, ?, ?)`,
			block[len(block)-1], nullableID(tail, tailValid), len(block))
		if err != nil {
			return fmt.Errorf("revindex: inserting mainline range: %w", err)
		}
		rangeID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("revindex: reading new range id: %w", err)
		}

		for i := len(block) - 1; i >= 0; i-- {
			dist := len(block) - 1 - i
			_, err := c.q.ExecContext(ctx,
				`INSERT INTO mainline_parent (range, revision, dist) VALUES (?, ?, ?)`,
				rangeID, block[i], dist)
			if err != nil {
				return fmt.Errorf("revindex: inserting mainline member: %w", err)
			}
		}
	}
	return nil
}

func nullableID(id types.DBID, valid bool) any {
	if !valid {
		return nil
	}
	return id
}
