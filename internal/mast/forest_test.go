package mast

import (
	"testing"

	"github.com/obellish/vmm-sub002/internal/digest"
)

func TestMaxNodesLimit(t *testing.T) {
	if MaxNodes != 1<<30-1 {
		t.Fatalf("MaxNodes = %d", MaxNodes)
	}
}

func TestTooManyNodesLeavesForestUnchanged(t *testing.T) {
	f := NewForest()
	f.maxNodes = 2
	mustBlock(t, f, Op(OpAdd))
	mustBlock(t, f, Op(OpMul))

	_, err := f.AddBlock([]Operation{Op(OpDrop)}, nil)
	if !IsKind(err, ErrTooManyNodes) {
		t.Fatalf("expected TooManyNodes, got %v", err)
	}
	if _, err := f.AddDyn(); !IsKind(err, ErrTooManyNodes) {
		t.Fatalf("expected TooManyNodes for dyn, got %v", err)
	}
	if f.NumNodes() != 2 {
		t.Fatalf("forest grew to %d nodes", f.NumNodes())
	}
}

func TestTooManyDecorators(t *testing.T) {
	f := NewForest()
	f.maxDecorators = 1
	if _, err := f.AddDecorator(Trace{ID: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.AddDecorator(Trace{ID: 2}); !IsKind(err, ErrTooManyDecorators) {
		t.Fatalf("expected TooManyDecorators, got %v", err)
	}
	if f.NumDecorators() != 1 {
		t.Fatalf("decorator table grew")
	}
}

func TestAddNodeRejectsUnknownDecorator(t *testing.T) {
	f := NewForest()
	a := mustBlock(t, f, Op(OpAdd))
	n := WithBeforeEnter(NewDyn(), []DecoratorID{3})
	if _, err := f.AddNode(n); !IsKind(err, ErrDecoratorIDOverflow) {
		t.Fatalf("expected DecoratorIDOverflow, got %v", err)
	}
	if _, err := f.AddBlock([]Operation{Op(OpAdd)}, []DecoratedOp{{OpIndex: 0, Decorator: 0}}); !IsKind(err, ErrDecoratorIDOverflow) {
		t.Fatalf("expected DecoratorIDOverflow for block, got %v", err)
	}
	if f.NumNodes() != 1 || a != 0 {
		t.Fatalf("forest changed after rejected nodes")
	}
}

func TestMakeRootIdempotent(t *testing.T) {
	f := NewForest()
	a := mustBlock(t, f, Op(OpAdd))
	b := mustBlock(t, f, Op(OpMul))
	f.MakeRoot(b)
	f.MakeRoot(a)
	f.MakeRoot(b)

	roots := f.Roots()
	if len(roots) != 2 || roots[0] != b || roots[1] != a {
		t.Fatalf("roots = %v", roots)
	}
	if !f.IsProcedureRoot(a) || !f.IsProcedureRoot(b) {
		t.Fatalf("roots not recognised")
	}
	if id, ok := f.FindProcedureRoot(f.NodeDigest(a)); !ok || id != a {
		t.Fatalf("FindProcedureRoot = %v %v", id, ok)
	}
	if _, ok := f.FindProcedureRoot(digest.Hash([]byte("missing"))); ok {
		t.Fatalf("found a procedure that does not exist")
	}
}

func TestMakeRootOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewForest().MakeRoot(0)
}

func TestForestEqual(t *testing.T) {
	build := func(trace uint32) *Forest {
		f := NewForest()
		d, _ := f.AddDecorator(Trace{ID: trace})
		a, _ := f.AddBlock([]Operation{Op(OpAdd)}, []DecoratedOp{{Decorator: d}})
		f.MakeRoot(a)
		f.AdviceMap().Insert(digest.Hash([]byte("k")), []byte{1, 2})
		return f
	}
	if !build(1).Equal(build(1)) {
		t.Fatalf("identical forests not equal")
	}
	if build(1).Equal(build(2)) {
		t.Fatalf("forests with different decorators are equal")
	}
}

func TestAdviceMapMergeConflict(t *testing.T) {
	key := digest.Hash([]byte("key"))
	var a, b AdviceMap
	a.Insert(key, []byte{1})
	b.Insert(key, []byte{2})
	b.Insert(digest.Hash([]byte("other")), []byte{3})

	err := a.MergeFrom(&b)
	if !IsKind(err, ErrAdviceMapKeyCollisionOnMerge) {
		t.Fatalf("expected collision, got %v", err)
	}
	if a.Len() != 1 {
		t.Fatalf("conflicting merge copied entries")
	}

	var c AdviceMap
	c.Insert(key, []byte{1})
	if err := a.MergeFrom(&c); err != nil {
		t.Fatalf("equal values must merge: %v", err)
	}
}

func TestAdviceMapInsertCopies(t *testing.T) {
	var m AdviceMap
	key := digest.Hash([]byte("k"))
	v := []byte{1, 2, 3}
	m.Insert(key, v)
	v[0] = 9
	got, _ := m.Get(key)
	if got[0] != 1 {
		t.Fatalf("advice value aliased caller slice")
	}
}
