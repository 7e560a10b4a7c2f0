package intern

import (
	"context"
	"testing"

	"github.com/jugmac00/revindex/internal/types"
)

func TestParentStoreRoundTrip(t *testing.T) {
	s := newTestDB(t)
	in := New(s.DB())
	ps := NewParentStore(s.DB())
	ctx := context.Background()

	a, _ := in.Intern(ctx, "A")
	b, _ := in.Intern(ctx, "B")
	c, _ := in.Intern(ctx, "C")

	if err := ps.SetParents(ctx, c, []types.DBID{a, b}); err != nil {
		t.Fatal(err)
	}
	// Re-recording the same child is a no-op, not a duplicate.
	if err := ps.SetParents(ctx, c, []types.DBID{a, b}); err != nil {
		t.Fatal(err)
	}

	parents, err := ps.GetParents(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 2 || parents[0] != a || parents[1] != b {
		t.Errorf("GetParents(C) = %v, want [%d %d]", parents, a, b)
	}

	lh, ok, err := ps.GetLHParent(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || lh != a {
		t.Errorf("GetLHParent(C) = (%d, %v), want (%d, true)", lh, ok, a)
	}

	children, err := ps.GetChildren(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0] != c {
		t.Errorf("GetChildren(A) = %v, want [%d]", children, c)
	}
}

func TestParentStoreRootHasNoLHParent(t *testing.T) {
	s := newTestDB(t)
	in := New(s.DB())
	ps := NewParentStore(s.DB())
	ctx := context.Background()

	a, _ := in.Intern(ctx, "A")
	_, ok, err := ps.GetLHParent(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("GetLHParent(A) ok = true, want false (A is a root)")
	}
}
