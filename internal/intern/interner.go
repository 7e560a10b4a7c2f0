// Package intern implements RevisionInterner and ParentStore (spec.md
// §4.2, §4.3): the dense rev_id<->db_id mapping, ghost tracking, gdfo
// bookkeeping, and ordered parent edges. A Interner is single-owner and
// rebuilt per Importer/Querier run (spec.md §9's re-architecture away
// from shared mutable module-level caches), write-through to the store.
package intern

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

// Interner maps external revision identifiers to dense db_ids, write-
// through to the revision/ghost tables. It is not safe for concurrent
// use from multiple goroutines; each Importer or Querier owns one.
type Interner struct {
	q store.Queryer

	revToDB map[types.RevID]types.DBID
	dbToRev map[types.DBID]types.RevID
	gdfo    map[types.DBID]int
	ghost   map[types.DBID]bool
}

// New creates an Interner backed by q. Pass a *sql.DB for a read-only
// Querier, or the Queryer handed to a write transaction's callback for
// an Importer.
func New(q store.Queryer) *Interner {
	return &Interner{
		q:       q,
		revToDB: make(map[types.RevID]types.DBID),
		dbToRev: make(map[types.DBID]types.RevID),
		gdfo:    make(map[types.DBID]int),
		ghost:   make(map[types.DBID]bool),
	}
}

// Intern returns id's db_id, allocating one on first sight. gdfo is left
// at a 0 placeholder for a newly-allocated revision; callers must follow
// up with SetGDFO once it is known. Idempotent: interning the same id
// twice, in this run or a past one, returns the same db_id.
func (in *Interner) Intern(ctx context.Context, id types.RevID) (types.DBID, error) {
	if err := id.Valid(); err != nil {
		return 0, err
	}
	if dbID, ok := in.revToDB[id]; ok {
		return dbID, nil
	}

	var dbID types.DBID
	var gdfo int
	err := in.q.QueryRowContext(ctx, `SELECT db_id, gdfo FROM revision WHERE rev_id = ?`, string(id)).
		Scan(&dbID, &gdfo)
	switch {
	case err == nil:
		in.cache(id, dbID, gdfo)
		return dbID, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("revindex: interning %q: %w", id, err)
	}

	res, err := in.q.ExecContext(ctx, `INSERT INTO revision (rev_id, gdfo) VALUES (?, 0)`, string(id))
	if err != nil {
		return 0, fmt.Errorf("revindex: allocating db_id for %q: %w", id, err)
	}
	last, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("revindex: reading allocated db_id for %q: %w", id, err)
	}
	dbID = types.DBID(last)
	in.cache(id, dbID, 0)
	return dbID, nil
}

func (in *Interner) cache(id types.RevID, dbID types.DBID, gdfo int) {
	in.revToDB[id] = dbID
	in.dbToRev[dbID] = id
	in.gdfo[dbID] = gdfo
}

// LookupRevID returns the external identifier for dbID.
func (in *Interner) LookupRevID(ctx context.Context, dbID types.DBID) (types.RevID, error) {
	if id, ok := in.dbToRev[dbID]; ok {
		return id, nil
	}
	var raw string
	err := in.q.QueryRowContext(ctx, `SELECT rev_id FROM revision WHERE db_id = ?`, dbID).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return "", fmt.Errorf("revindex: db_id %d: %w", dbID, types.ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("revindex: looking up db_id %d: %w", dbID, err)
	}
	id := types.RevID(raw)
	in.dbToRev[dbID] = id
	in.revToDB[id] = dbID
	return id, nil
}

// LookupDBID returns the db_id for a known external identifier without
// allocating one, unlike Intern. Returns ErrNotFound if id has never
// been interned.
func (in *Interner) LookupDBID(ctx context.Context, id types.RevID) (types.DBID, error) {
	if dbID, ok := in.revToDB[id]; ok {
		return dbID, nil
	}
	var dbID types.DBID
	err := in.q.QueryRowContext(ctx, `SELECT db_id FROM revision WHERE rev_id = ?`, string(id)).Scan(&dbID)
	switch {
	case err == sql.ErrNoRows:
		return 0, fmt.Errorf("revindex: rev_id %q: %w", id, types.ErrNotFound)
	case err != nil:
		return 0, fmt.Errorf("revindex: looking up rev_id %q: %w", id, err)
	}
	in.cache(id, dbID, -1)
	return dbID, nil
}

// SetGDFO records dbID's generation-depth-from-origin, write-through to
// the store. 1 for parent-less roots; 1 + max(parent gdfo) otherwise.
func (in *Interner) SetGDFO(ctx context.Context, dbID types.DBID, gdfo int) error {
	if _, err := in.q.ExecContext(ctx, `UPDATE revision SET gdfo = ? WHERE db_id = ?`, gdfo, dbID); err != nil {
		return fmt.Errorf("revindex: setting gdfo for db_id %d: %w", dbID, err)
	}
	in.gdfo[dbID] = gdfo
	return nil
}

// GDFO returns a cached gdfo if this run has already set or loaded it.
// The 0 placeholder left by Intern does not count as known.
func (in *Interner) GDFO(dbID types.DBID) (int, bool) {
	g, ok := in.gdfo[dbID]
	if !ok || g <= 0 {
		return 0, false
	}
	return g, true
}

// LoadGDFO reads dbID's gdfo from the store, caching the result.
func (in *Interner) LoadGDFO(ctx context.Context, dbID types.DBID) (int, error) {
	if g, ok := in.GDFO(dbID); ok {
		return g, nil
	}
	var g int
	err := in.q.QueryRowContext(ctx, `SELECT gdfo FROM revision WHERE db_id = ?`, dbID).Scan(&g)
	switch {
	case err == sql.ErrNoRows:
		return 0, fmt.Errorf("revindex: db_id %d: %w", dbID, types.ErrNotFound)
	case err != nil:
		return 0, fmt.Errorf("revindex: loading gdfo for db_id %d: %w", dbID, err)
	}
	in.gdfo[dbID] = g
	return g, nil
}

// MarkGhost records dbID as a ghost: a revision referenced as a parent
// whose content is unknown. Ghosts are recorded with gdfo 1.
func (in *Interner) MarkGhost(ctx context.Context, dbID types.DBID) error {
	if _, err := in.q.ExecContext(ctx, `INSERT OR IGNORE INTO ghost (db_id) VALUES (?)`, dbID); err != nil {
		return fmt.Errorf("revindex: marking db_id %d as ghost: %w", dbID, err)
	}
	if err := in.SetGDFO(ctx, dbID, 1); err != nil {
		return err
	}
	in.ghost[dbID] = true
	return nil
}

// IsGhost reports whether dbID is a known ghost, consulting the store if
// this run hasn't seen it yet.
func (in *Interner) IsGhost(ctx context.Context, dbID types.DBID) (bool, error) {
	if g, ok := in.ghost[dbID]; ok {
		return g, nil
	}
	var x int
	err := in.q.QueryRowContext(ctx, `SELECT 1 FROM ghost WHERE db_id = ?`, dbID).Scan(&x)
	switch {
	case err == sql.ErrNoRows:
		in.ghost[dbID] = false
		return false, nil
	case err != nil:
		return false, fmt.Errorf("revindex: checking ghost status of db_id %d: %w", dbID, err)
	default:
		in.ghost[dbID] = true
		return true, nil
	}
}
