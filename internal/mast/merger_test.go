package mast_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/testkit"
	"github.com/obellish/vmm-sub002/internal/trace"
)

func singleBlock(t *testing.T, ops ...mast.Operation) (*mast.Forest, mast.NodeID) {
	t.Helper()
	f := mast.NewForest()
	id, err := f.AddBlock(ops, nil)
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	f.MakeRoot(id)
	return f, id
}

func mustMerge(t *testing.T, forests ...*mast.Forest) (*mast.Forest, mast.RootMap) {
	t.Helper()
	out, roots, err := mast.Merge(forests...)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := testkit.CheckForestInvariants(out); err != nil {
		t.Fatalf("merged forest invariants: %v", err)
	}
	if err := testkit.CheckRootMap(forests, out, roots); err != nil {
		t.Fatalf("root map: %v", err)
	}
	return out, roots
}

func TestMergeIdenticalSingleBlocks(t *testing.T) {
	f1, r1 := singleBlock(t, mast.Op(mast.OpAdd))
	f2, r2 := singleBlock(t, mast.Op(mast.OpAdd))

	out, roots := mustMerge(t, f1, f2)
	if out.NumNodes() != 1 {
		t.Fatalf("merged forest has %d nodes, want 1", out.NumNodes())
	}
	a, _ := roots.Lookup(0, r1)
	b, _ := roots.Lookup(1, r2)
	if a != b {
		t.Fatalf("roots map to %s and %s, want the same node", a, b)
	}
	if len(out.Roots()) != 1 {
		t.Fatalf("merged roots = %v", out.Roots())
	}
}

func TestMergeDistinctBlocks(t *testing.T) {
	f1, _ := singleBlock(t, mast.Op(mast.OpAdd))
	f2, _ := singleBlock(t, mast.Op(mast.OpMul))
	out, _ := mustMerge(t, f1, f2)
	if out.NumNodes() != 2 || len(out.Roots()) != 2 {
		t.Fatalf("got %d nodes, %d roots", out.NumNodes(), len(out.Roots()))
	}
}

func TestMergeSelfIsPerfectDedup(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, 99))
		f, err := testkit.RandomForest(rng, testkit.RandomOptions{
			Nodes:        40,
			Decorators:   6,
			DecorateRate: 0.3,
			RootRate:     0.2,
			Externals:    []digest.Digest{digest.Hash([]byte("ext"))},
		}, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}

		once, onceRoots := mustMerge(t, f)
		twice, twiceRoots := mustMerge(t, f, f)
		if once.NumNodes() != twice.NumNodes() {
			t.Fatalf("seed %d: merge(f) has %d nodes, merge(f, f) has %d", seed, once.NumNodes(), twice.NumNodes())
		}
		if once.NumNodes() > f.NumNodes() {
			t.Fatalf("seed %d: merge grew the forest", seed)
		}
		for _, r := range f.Roots() {
			a, _ := twiceRoots.Lookup(0, r)
			b, _ := twiceRoots.Lookup(1, r)
			c, _ := onceRoots.Lookup(0, r)
			if a != b || a != c {
				t.Fatalf("seed %d: root %s maps to %s, %s and %s", seed, r, a, b, c)
			}
		}
	}
}

func TestMergeRandomBuildsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	step := func(f *mast.Forest) error { return testkit.CheckForestInvariants(f) }
	var forests []*mast.Forest
	for range 4 {
		f, err := testkit.RandomForest(rng, testkit.RandomOptions{Nodes: 30, Decorators: 3, DecorateRate: 0.2, RootRate: 0.3}, step)
		if err != nil {
			t.Fatal(err)
		}
		forests = append(forests, f)
	}
	mustMerge(t, forests...)
}

func TestMergeIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	a, err := testkit.RandomForest(rng, testkit.RandomOptions{Nodes: 25, Decorators: 4, DecorateRate: 0.5, RootRate: 0.3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := testkit.RandomForest(rng, testkit.RandomOptions{Nodes: 25, Decorators: 4, DecorateRate: 0.5, RootRate: 0.3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out1, _ := mustMerge(t, a, b)
	out2, _ := mustMerge(t, a, b)
	if !out1.Equal(out2) {
		t.Fatalf("merging the same inputs twice gave different forests")
	}
}

func TestMergeKeepsDecoratedVariantsApart(t *testing.T) {
	build := func(traceID uint32) (*mast.Forest, mast.NodeID) {
		f := mast.NewForest()
		d, _ := f.AddDecorator(mast.Trace{ID: traceID})
		id, err := f.AddBlock([]mast.Operation{mast.Op(mast.OpAdd)}, []mast.DecoratedOp{{Decorator: d}})
		if err != nil {
			t.Fatal(err)
		}
		f.MakeRoot(id)
		return f, id
	}
	f1, r1 := build(1)
	f2, r2 := build(2)

	out, roots := mustMerge(t, f1, f2)
	if out.NumNodes() != 2 {
		t.Fatalf("decorated variants merged into %d nodes", out.NumNodes())
	}
	a, _ := roots.Lookup(0, r1)
	b, _ := roots.Lookup(1, r2)
	if a == b {
		t.Fatalf("both roots map to %s", a)
	}
	if out.NodeDigest(a) != out.NodeDigest(b) {
		t.Fatalf("variants must stay execution-equivalent")
	}
}

func TestMergeKeepsErrorCodesApart(t *testing.T) {
	f1, _ := singleBlock(t, mast.Assert(1))
	f2, _ := singleBlock(t, mast.Assert(2))
	out, _ := mustMerge(t, f1, f2)
	if out.NumNodes() != 2 {
		t.Fatalf("blocks with different error codes were deduplicated")
	}
}

func TestMergeDeduplicatesDecorators(t *testing.T) {
	build := func() *mast.Forest {
		f := mast.NewForest()
		loc := &mast.Location{Path: "lib.masm", Start: 1, End: 4}
		d, _ := f.AddDecorator(mast.NewAsmOp(loc, "lib::f", "add", 1, false))
		id, _ := f.AddBlock([]mast.Operation{mast.Op(mast.OpAdd)}, []mast.DecoratedOp{{Decorator: d}})
		f.MakeRoot(id)
		return f
	}
	out, _ := mustMerge(t, build(), build())
	if out.NumDecorators() != 1 || out.NumNodes() != 1 {
		t.Fatalf("got %d decorators, %d nodes", out.NumDecorators(), out.NumNodes())
	}
}

func TestMergeResolvesExternals(t *testing.T) {
	lib, proc := singleBlock(t, mast.Op(mast.OpAdd), mast.Op(mast.OpMul))

	app := mast.NewForest()
	ext, _ := app.AddExternal(lib.NodeDigest(proc))
	call, _ := app.AddCall(ext)
	app.MakeRoot(call)

	for _, order := range [][]*mast.Forest{{lib, app}, {app, lib}} {
		out, _ := mustMerge(t, order...)
		if out.NumNodes() != 2 {
			t.Fatalf("got %d nodes, want block and call", out.NumNodes())
		}
		for _, n := range out.Nodes() {
			if n.Kind() == mast.KindExternal {
				t.Fatalf("external survived the merge")
			}
		}
	}
}

func TestMergeKeepsUnresolvedExternal(t *testing.T) {
	f := mast.NewForest()
	ext, _ := f.AddExternal(digest.Hash([]byte("missing")))
	f.MakeRoot(ext)
	out, _ := mustMerge(t, f)
	if out.NumNodes() != 1 || out.Node(0).Kind() != mast.KindExternal {
		t.Fatalf("unresolved external not preserved")
	}
}

func TestMergeAdviceMapConflict(t *testing.T) {
	key := digest.Hash([]byte("key"))
	f1, _ := singleBlock(t, mast.Op(mast.OpAdd))
	f1.AdviceMap().Insert(key, []byte{1})
	f2, _ := singleBlock(t, mast.Op(mast.OpMul))
	f2.AdviceMap().Insert(key, []byte{2})

	out, _, err := mast.Merge(f1, f2)
	if out != nil {
		t.Fatalf("partial forest returned on error")
	}
	var fe *mast.ForestError
	if !errors.As(err, &fe) || fe.Kind != mast.ErrAdviceMapKeyCollisionOnMerge || fe.Key != key {
		t.Fatalf("expected collision on %s, got %v", key.Short(), err)
	}
}

func TestMergeAdviceMapUnion(t *testing.T) {
	k1, k2 := digest.Hash([]byte("a")), digest.Hash([]byte("b"))
	f1, _ := singleBlock(t, mast.Op(mast.OpAdd))
	f1.AdviceMap().Insert(k1, []byte{1})
	f1.AdviceMap().Insert(k2, []byte{2})
	f2, _ := singleBlock(t, mast.Op(mast.OpAdd))
	f2.AdviceMap().Insert(k2, []byte{2})

	out, _ := mustMerge(t, f1, f2)
	if out.AdviceMap().Len() != 2 {
		t.Fatalf("advice map has %d entries", out.AdviceMap().Len())
	}
}

func TestMergeLeavesInputsUntouched(t *testing.T) {
	f1, _ := singleBlock(t, mast.Op(mast.OpAdd))
	f2, _ := singleBlock(t, mast.Op(mast.OpAdd))
	snap, _ := singleBlock(t, mast.Op(mast.OpAdd))
	mustMerge(t, f1, f2)
	if !f1.Equal(snap) || !f2.Equal(snap) {
		t.Fatalf("merge modified its inputs")
	}
}

func TestMergeEmpty(t *testing.T) {
	out, roots := mustMerge(t)
	if !out.IsEmpty() || roots.Len() != 0 {
		t.Fatalf("merging nothing should give an empty forest")
	}
}

func TestMergeEmitsTrace(t *testing.T) {
	ring := trace.NewRingTracer(256, trace.LevelDebug)
	ctx := trace.WithTracer(context.Background(), ring)

	f1, _ := singleBlock(t, mast.Op(mast.OpAdd))
	f2, _ := singleBlock(t, mast.Op(mast.OpAdd))
	if _, _, err := mast.MergeContext(ctx, f1, f2); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, ev := range ring.Snapshot() {
		seen[ev.Name] = true
	}
	for _, name := range []string{"merge", "merge.advice", "merge.decorators", "merge.nodes", "merge.roots", "merge.dedup"} {
		if !seen[name] {
			t.Fatalf("missing trace event %q", name)
		}
	}
}

func TestMergerStats(t *testing.T) {
	f1, _ := singleBlock(t, mast.Op(mast.OpAdd))
	f2, _ := singleBlock(t, mast.Op(mast.OpAdd))
	m := mast.NewMerger([]*mast.Forest{f1, f2})
	if _, _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := m.Stats()
	if st.InputNodes != 2 || st.OutputNodes != 1 || st.DedupedNodes != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if _, _, err := m.Run(context.Background()); err == nil {
		t.Fatalf("second Run should fail")
	}
}
