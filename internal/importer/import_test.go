package importer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jugmac00/revindex/internal/oracle"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

func newTestImporter(t *testing.T, cfg Config) (*Importer, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "revindex.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	lock := NewWriterLock(filepath.Join(dir, "revindex.db.lock"))
	return New(s, lock, cfg, nil), s
}

func linearOracle() *oracle.Memory {
	m := oracle.NewMemory("D")
	m.AddRevision("A")
	m.AddRevision("B", "A")
	m.AddRevision("C", "B")
	m.AddRevision("D", "C")
	return m
}

func dottedRevno(t *testing.T, s *store.Store, tip, merged types.DBID) string {
	t.Helper()
	var revno string
	err := s.DB().QueryRowContext(context.Background(),
		`SELECT revno FROM dotted_revno WHERE tip = ? AND merged = ?`, tip, merged).Scan(&revno)
	if err != nil {
		t.Fatalf("loading revno for tip=%d merged=%d: %v", tip, merged, err)
	}
	return revno
}

// TestImportLinear is spec.md §8's S1 run end to end through Import.
func TestImportLinear(t *testing.T) {
	imp, s := newTestImporter(t, Config{})
	res, err := imp.Import(context.Background(), linearOracle(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Inserted {
		t.Fatalf("outcome = %v, want Inserted", res.Outcome)
	}

	ctx := context.Background()
	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT count(*) FROM dotted_revno WHERE tip = ?`, res.Tip).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Fatalf("got %d dotted_revno rows, want 4", count)
	}
	if got := dottedRevno(t, s, res.Tip, res.Tip); got != "4" {
		t.Errorf("tip revno = %s, want 4", got)
	}
}

// TestImportIdempotent is invariant 2: re-importing the same tip makes no
// changes and reports AlreadyPresent.
func TestImportIdempotent(t *testing.T) {
	imp, s := newTestImporter(t, Config{})
	ctx := context.Background()
	first, err := imp.Import(ctx, linearOracle(), nil)
	if err != nil {
		t.Fatal(err)
	}

	var before int
	if err := s.DB().QueryRowContext(ctx, `SELECT count(*) FROM dotted_revno`).Scan(&before); err != nil {
		t.Fatal(err)
	}

	second, err := imp.Import(ctx, linearOracle(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != AlreadyPresent {
		t.Fatalf("second import outcome = %v, want AlreadyPresent", second.Outcome)
	}
	if second.Tip != first.Tip {
		t.Errorf("second import tip = %d, want %d", second.Tip, first.Tip)
	}

	var after int
	if err := s.DB().QueryRowContext(ctx, `SELECT count(*) FROM dotted_revno`).Scan(&after); err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Errorf("row count changed on re-import: %d -> %d", before, after)
	}
}

// TestImportIncrementalExtendsLinear bootstraps a mainline tip, then
// imports an extension of it with Incremental enabled and checks the
// new tip's numbering continues the old one and the old tip's rows were
// copied forward (not recomputed).
func TestImportIncrementalExtendsLinear(t *testing.T) {
	imp, s := newTestImporter(t, Config{Incremental: true})
	ctx := context.Background()

	first, err := imp.Import(ctx, linearOracle(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ext := oracle.NewMemory("E")
	ext.AddRevision("A")
	ext.AddRevision("B", "A")
	ext.AddRevision("C", "B")
	ext.AddRevision("D", "C")
	ext.AddRevision("E", "D")

	second, err := imp.Import(ctx, ext, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != Inserted {
		t.Fatalf("outcome = %v, want Inserted", second.Outcome)
	}
	if got := dottedRevno(t, s, second.Tip, second.Tip); got != "5" {
		t.Errorf("E revno = %s, want 5", got)
	}
	if got := dottedRevno(t, s, second.Tip, first.Tip); got != "4" {
		t.Errorf("copied D revno under new tip = %s, want 4 (unchanged)", got)
	}

	var newCount int
	if err := s.DB().QueryRowContext(ctx, `SELECT count(*) FROM dotted_revno WHERE tip = ?`, second.Tip).Scan(&newCount); err != nil {
		t.Fatal(err)
	}
	if newCount != 5 {
		t.Fatalf("got %d rows under new tip, want 5 (4 copied + 1 new)", newCount)
	}
}

// TestImportValidateCatchesNothingWrong runs with Validate enabled
// against a well-formed history and expects no error: the whole point of
// the option is that it is silent when the sorters agree.
func TestImportValidateCatchesNothingWrong(t *testing.T) {
	imp, _ := newTestImporter(t, Config{Incremental: true, Validate: true})
	ctx := context.Background()
	if _, err := imp.Import(ctx, linearOracle(), nil); err != nil {
		t.Fatal(err)
	}

	ext := oracle.NewMemory("E")
	ext.AddRevision("A")
	ext.AddRevision("B", "A")
	ext.AddRevision("C", "B")
	ext.AddRevision("D", "C")
	ext.AddRevision("E", "D")
	if _, err := imp.Import(ctx, ext, nil); err != nil {
		t.Fatal(err)
	}
}

// TestImportGhostParent is spec.md §8's S5: a parent absent from the
// oracle's GetParentMap response is recorded as a ghost and never
// numbered.
func TestImportGhostParent(t *testing.T) {
	imp, s := newTestImporter(t, Config{})
	m := oracle.NewMemory("tip")
	m.AddRevision("tip", "known", "ghost")
	m.AddRevision("known")
	// "ghost" deliberately never added.

	res, err := imp.Import(context.Background(), m, nil)
	if err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.DB().QueryRowContext(context.Background(),
		`SELECT count(*) FROM dotted_revno WHERE tip = ?`, res.Tip).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("got %d numbered rows, want 2 (tip, known)", count)
	}

	var ghostCount int
	if err := s.DB().QueryRowContext(context.Background(), `SELECT count(*) FROM ghost`).Scan(&ghostCount); err != nil {
		t.Fatal(err)
	}
	if ghostCount != 1 {
		t.Fatalf("got %d ghost rows, want 1", ghostCount)
	}
}

// TestImportCanceled checks that a progress callback returning true
// aborts the import with ErrCanceled and commits nothing.
func TestImportCanceled(t *testing.T) {
	imp, s := newTestImporter(t, Config{})
	_, err := imp.Import(context.Background(), linearOracle(), func(string, int) bool { return true })
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}

	var count int
	if err := s.DB().QueryRowContext(context.Background(), `SELECT count(*) FROM dotted_revno`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("got %d rows after cancellation, want 0", count)
	}
}
