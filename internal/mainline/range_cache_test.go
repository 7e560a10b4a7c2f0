package mainline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jugmac00/revindex/internal/intern"
	"github.com/jugmac00/revindex/internal/store"
	"github.com/jugmac00/revindex/internal/types"
)

func linearChain(t *testing.T, n int) (*store.Store, *intern.ParentStore, []types.DBID) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "revindex.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	in := intern.New(s.DB())
	ps := intern.NewParentStore(s.DB())

	ids := make([]types.DBID, n)
	for i := 0; i < n; i++ {
		dbid, err := in.Intern(ctx, types.RevID(string(rune('A'+i))))
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = dbid
		if i > 0 {
			if err := ps.SetParents(ctx, ids[i], []types.DBID{ids[i-1]}); err != nil {
				t.Fatal(err)
			}
		}
	}
	return s, ps, ids
}

// TestExtendSingleRange builds a chain shorter than maxRange: it should
// pack into exactly one range rooted at the head with no tail.
func TestExtendSingleRange(t *testing.T) {
	s, ps, ids := linearChain(t, 5)
	c := New(s.DB(), ps, 10)
	head := ids[len(ids)-1]

	if err := c.Extend(context.Background(), head); err != nil {
		t.Fatal(err)
	}

	r, ok, err := c.RangeForHead(context.Background(), head)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a range rooted at head")
	}
	if r.Count != 5 {
		t.Errorf("Count = %d, want 5", r.Count)
	}
	if r.HasTail {
		t.Error("HasTail = true, want false (chain has no further ancestor)")
	}

	members, err := c.Members(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 5 {
		t.Fatalf("got %d members, want 5", len(members))
	}
	for i, want := range []types.DBID{ids[4], ids[3], ids[2], ids[1], ids[0]} {
		if members[i] != want {
			t.Errorf("member %d = %d, want %d", i, members[i], want)
		}
	}
}

// TestExtendChunksAcrossMaxRange checks a chain longer than maxRange is
// split into multiple linked ranges, each capped at maxRange entries.
// Chunking starts from the oldest revision, so the only sub-maximal
// range is the one at the head.
func TestExtendChunksAcrossMaxRange(t *testing.T) {
	s, ps, ids := linearChain(t, 7)
	c := New(s.DB(), ps, 3)
	head := ids[len(ids)-1]

	if err := c.Extend(context.Background(), head); err != nil {
		t.Fatal(err)
	}

	r, ok, err := c.RangeForHead(context.Background(), head)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a range rooted at head")
	}
	if r.Count != 1 {
		t.Errorf("head range Count = %d, want 1", r.Count)
	}
	if !r.HasTail {
		t.Fatal("head range should chain into an older range")
	}

	next, ok, err := c.RangeForHead(context.Background(), r.Tail)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a second range rooted at the first range's tail")
	}
	if next.Count != 3 {
		t.Errorf("second range Count = %d, want 3", next.Count)
	}
	if !next.HasTail {
		t.Fatal("second range should chain into the oldest range")
	}

	last, ok, err := c.RangeForHead(context.Background(), next.Tail)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a third range rooted at the second range's tail")
	}
	if last.Count != 3 {
		t.Errorf("oldest range Count = %d, want 3", last.Count)
	}
	if last.HasTail {
		t.Error("oldest range should have no tail")
	}
}

// TestExtendIsIncremental checks that re-extending after the chain grows
// absorbs the existing sub-maximal range instead of duplicating it.
func TestExtendIsIncremental(t *testing.T) {
	s, ps, ids := linearChain(t, 3)
	c := New(s.DB(), ps, 10)
	ctx := context.Background()

	if err := c.Extend(ctx, ids[2]); err != nil {
		t.Fatal(err)
	}

	newTip, err := intern.New(s.DB()).Intern(ctx, types.RevID("D"))
	if err != nil {
		t.Fatal(err)
	}
	if err := ps.SetParents(ctx, newTip, []types.DBID{ids[2]}); err != nil {
		t.Fatal(err)
	}
	if err := c.Extend(ctx, newTip); err != nil {
		t.Fatal(err)
	}

	r, ok, err := c.RangeForHead(ctx, newTip)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a range rooted at the new tip")
	}
	if r.Count != 4 {
		t.Errorf("Count = %d, want 4 (absorbed the old 3-member range plus the new tip)", r.Count)
	}
}
