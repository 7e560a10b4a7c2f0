package mergesort

import (
	"context"
	"testing"

	"github.com/jugmac00/revindex/internal/types"
)

// graph is a minimal in-memory ancestry for exercising FullMergeSorter
// without a database: ids are small ints standing in for db_ids, and a
// ghost is any id listed as a parent but absent from parents.
type graph struct {
	parents map[types.DBID][]types.DBID
	ghosts  map[types.DBID]bool
}

func (g *graph) parentsOf(_ context.Context, dbid types.DBID) ([]types.DBID, error) {
	return g.parents[dbid], nil
}

func (g *graph) isGhost(_ context.Context, dbid types.DBID) (bool, error) {
	return g.ghosts[dbid], nil
}

func wantRevno(t *testing.T, got types.DottedRevno, want ...int) {
	t.Helper()
	if !got.Equal(types.DottedRevno(want)) {
		t.Errorf("revno = %s, want %s", got, types.DottedRevno(want))
	}
}

// TestFullMergeSorterS1 is spec.md §8's S1: linear history A<-B<-C<-D.
func TestFullMergeSorterS1(t *testing.T) {
	const A, B, C, D = 1, 2, 3, 4
	g := &graph{parents: map[types.DBID][]types.DBID{
		B: {A}, C: {B}, D: {C},
	}}

	nodes, err := FullMergeSorter(context.Background(), D, g.parentsOf, g.isGhost)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 4 {
		t.Fatalf("got %d nodes, want 4", len(nodes))
	}

	byID := map[types.DBID]Node{}
	for _, n := range nodes {
		byID[n.DBID] = n
		if n.MergeDepth != 0 {
			t.Errorf("db_id %d: merge_depth = %d, want 0", n.DBID, n.MergeDepth)
		}
	}
	wantRevno(t, byID[A].Revno, 1)
	wantRevno(t, byID[B].Revno, 2)
	wantRevno(t, byID[C].Revno, 3)
	wantRevno(t, byID[D].Revno, 4)

	if !byID[A].EndOfMerge {
		t.Error("A: end_of_merge = false, want true (oldest)")
	}
	for _, id := range []types.DBID{B, C, D} {
		if byID[id].EndOfMerge {
			t.Errorf("db_id %d: end_of_merge = true, want false", id)
		}
	}

	// tip-first order and Dist.
	if nodes[0].DBID != D || nodes[len(nodes)-1].DBID != A {
		t.Errorf("order = %v, want tip-first ending at A", nodes)
	}
	for i, n := range nodes {
		if n.Dist != i {
			t.Errorf("node %d (db_id %d): dist = %d, want %d", i, n.DBID, n.Dist, i)
		}
	}
}

// TestFullMergeSorterS2 is spec.md §8's S2: mainline A<-B<-D with A<-C,
// D's parents [B, C].
func TestFullMergeSorterS2(t *testing.T) {
	const A, B, C, D = 1, 2, 3, 4
	g := &graph{parents: map[types.DBID][]types.DBID{
		B: {A}, C: {A}, D: {B, C},
	}}

	nodes, err := FullMergeSorter(context.Background(), D, g.parentsOf, g.isGhost)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[types.DBID]Node{}
	for _, n := range nodes {
		byID[n.DBID] = n
	}

	wantRevno(t, byID[A].Revno, 1)
	wantRevno(t, byID[B].Revno, 2)
	wantRevno(t, byID[C].Revno, 1, 1, 1)
	wantRevno(t, byID[D].Revno, 3)

	if byID[C].MergeDepth != 1 {
		t.Errorf("C: merge_depth = %d, want 1", byID[C].MergeDepth)
	}
	for _, id := range []types.DBID{A, B, D} {
		if byID[id].MergeDepth != 0 {
			t.Errorf("db_id %d: merge_depth = %d, want 0", id, byID[id].MergeDepth)
		}
	}

	for id, want := range map[types.DBID]bool{A: true, B: false, C: true, D: false} {
		if byID[id].EndOfMerge != want {
			t.Errorf("db_id %d: end_of_merge = %v, want %v", id, byID[id].EndOfMerge, want)
		}
	}
}

// TestFullMergeSorterS3 is spec.md §8's S3: two merges of separate
// branches. Mainline A<-B<-E<-G; B's second parent C (parent A); E's
// second parent D (parent B).
func TestFullMergeSorterS3(t *testing.T) {
	const A, B, C, D, E, G = 1, 2, 3, 4, 5, 6
	g := &graph{parents: map[types.DBID][]types.DBID{
		B: {A, C},
		C: {A},
		E: {B, D},
		D: {B},
		G: {E},
	}}

	nodes, err := FullMergeSorter(context.Background(), G, g.parentsOf, g.isGhost)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[types.DBID]Node{}
	for _, n := range nodes {
		byID[n.DBID] = n
	}

	wantRevno(t, byID[A].Revno, 1)
	wantRevno(t, byID[B].Revno, 2)
	wantRevno(t, byID[C].Revno, 1, 1, 1)
	wantRevno(t, byID[D].Revno, 2, 1, 1)
	wantRevno(t, byID[E].Revno, 3)
	wantRevno(t, byID[G].Revno, 4)
}

// TestFullMergeSorterS5 is spec.md §8's S5: a ghost parent is recorded
// as contributing nothing to numbering and produces no error.
func TestFullMergeSorterS5(t *testing.T) {
	const known, tip, ghost = 1, 2, 3
	g := &graph{
		parents: map[types.DBID][]types.DBID{tip: {known, ghost}},
		ghosts:  map[types.DBID]bool{ghost: true},
	}

	nodes, err := FullMergeSorter(context.Background(), tip, g.parentsOf, g.isGhost)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		if n.DBID == ghost {
			t.Fatalf("ghost db_id %d unexpectedly numbered", ghost)
		}
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (tip, known)", len(nodes))
	}
}

// TestFullMergeSorterNoDuplicateRevno is invariant 5: for a fixed tip,
// revno values are unique.
func TestFullMergeSorterNoDuplicateRevno(t *testing.T) {
	const A, B, C, D, E, G = 1, 2, 3, 4, 5, 6
	g := &graph{parents: map[types.DBID][]types.DBID{
		B: {A, C},
		C: {A},
		E: {B, D},
		D: {B},
		G: {E},
	}}

	nodes, err := FullMergeSorter(context.Background(), G, g.parentsOf, g.isGhost)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, n := range nodes {
		s := n.Revno.String()
		if seen[s] {
			t.Errorf("duplicate revno %s", s)
		}
		seen[s] = true
	}
}
