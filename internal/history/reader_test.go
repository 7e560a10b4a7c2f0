package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jugmac00/revindex/internal/intern"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

// fixture builds a real sqlite-backed store with A<-B<-C (C is tip,
// left-hand chain only) interned, parent edges recorded, and dotted_revno
// rows for A=1, B=2 already present under tip=C. C itself deliberately
// has no row, unlike what Importer would persist for C's own tip.
func fixture(t *testing.T) (store.Queryer, *intern.ParentStore, map[string]types.DBID) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "revindex.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	db := s.DB()
	in := intern.New(db)
	ps := intern.NewParentStore(db)

	ids := map[string]types.DBID{}
	for _, name := range []string{"A", "B", "C"} {
		dbid, err := in.Intern(ctx, types.RevID(name))
		if err != nil {
			t.Fatal(err)
		}
		ids[name] = dbid
	}
	if err := ps.SetParents(ctx, ids["B"], []types.DBID{ids["A"]}); err != nil {
		t.Fatal(err)
	}
	if err := ps.SetParents(ctx, ids["C"], []types.DBID{ids["B"]}); err != nil {
		t.Fatal(err)
	}

	for _, row := range []struct {
		merged types.DBID
		revno  string
	}{
		{ids["A"], "1"},
		{ids["B"], "2"},
	} {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO dotted_revno (tip, merged, revno, end_of_merge, merge_depth, dist) VALUES (?, ?, ?, ?, ?, ?)`,
			ids["C"], row.merged, row.revno, 1, 0, 0); err != nil {
			t.Fatal(err)
		}
	}

	return db, ps, ids
}

func TestScopedReaderImported(t *testing.T) {
	db, ps, ids := fixture(t)
	r := NewReader(db, ps).Scoped(ids["C"])
	ctx := context.Background()

	got, err := r.Imported(ctx, ids["A"])
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("A: Imported = false, want true")
	}

	got, err = r.Imported(ctx, ids["C"])
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("C: Imported = true, want false (never persisted under its own tip)")
	}
}

func TestScopedReaderRevno(t *testing.T) {
	db, ps, ids := fixture(t)
	r := NewReader(db, ps).Scoped(ids["C"])
	ctx := context.Background()

	revno, ok, err := r.Revno(ctx, ids["B"])
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("B: ok = false, want true")
	}
	if !revno.Equal(types.DottedRevno{2}) {
		t.Errorf("B: revno = %s, want 2", revno)
	}

	_, ok, err = r.Revno(ctx, ids["C"])
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("C: ok = true, want false")
	}
}

func TestScopedReaderFirstChildTaken(t *testing.T) {
	db, ps, ids := fixture(t)
	r := NewReader(db, ps).Scoped(ids["C"])
	ctx := context.Background()

	// B's only historical child is C, which has no persisted row under
	// its own tip, so B's first-child slot is still open.
	taken, err := r.FirstChildTaken(ctx, ids["B"])
	if err != nil {
		t.Fatal(err)
	}
	if taken {
		t.Error("B: FirstChildTaken = true, want false (only child, C, isn't imported under this tip)")
	}

	// A's only child, B, is imported under this tip as A's left-hand
	// child, so the slot is taken.
	taken, err = r.FirstChildTaken(ctx, ids["A"])
	if err != nil {
		t.Fatal(err)
	}
	if !taken {
		t.Error("A: FirstChildTaken = false, want true (B is A's imported left-hand child)")
	}
}

func TestScopedReaderBranchCount(t *testing.T) {
	db, ps, ids := fixture(t)
	r := NewReader(db, ps).Scoped(ids["C"])
	ctx := context.Background()

	count, err := r.BranchCount(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("BranchCount(1) = %d, want 0 (no sub-branches rooted at 1 yet)", count)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO dotted_revno (tip, merged, revno, end_of_merge, merge_depth, dist) VALUES (?, ?, ?, ?, ?, ?)`,
		ids["C"], ids["C"], "1.2.1", 1, 1, 5); err != nil {
		t.Fatal(err)
	}
	count, err = r.BranchCount(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("BranchCount(1) = %d, want 2 after inserting 1.2.1", count)
	}
}
