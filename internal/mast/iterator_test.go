package mast

import (
	"testing"

	"github.com/obellish/vmm-sub002/internal/digest"
)

func collect(t *testing.T, forests ...*Forest) []IterEvent {
	t.Helper()
	it := NewMultiForestIterator(forests)
	var out []IterEvent
	for {
		ev, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestIteratorYieldsChildrenFirstOnce(t *testing.T) {
	f := NewForest()
	a := mustBlock(t, f, Op(OpAdd))
	b := mustBlock(t, f, Op(OpMul))
	j, _ := f.AddJoin(b, a)
	s, _ := f.AddSplit(j, j)
	f.MakeRoot(s)

	events := collect(t, f)
	if len(events) != f.NumNodes() {
		t.Fatalf("got %d events for %d nodes", len(events), f.NumNodes())
	}
	pos := make(map[NodeID]int)
	for i, ev := range events {
		if ev.Kind != EventNode || ev.Forest != 0 {
			t.Fatalf("unexpected event %+v", ev)
		}
		if _, dup := pos[ev.Node]; dup {
			t.Fatalf("%s yielded twice", ev.Node)
		}
		pos[ev.Node] = i
	}
	for _, n := range []NodeID{j, s} {
		for _, c := range f.Node(n).Children() {
			if pos[c] > pos[n] {
				t.Fatalf("child %s yielded after parent %s", c, n)
			}
		}
	}
}

func TestIteratorResolvesExternalFromLaterForest(t *testing.T) {
	lib := NewForest()
	proc := mustBlock(t, lib, Op(OpAdd), Op(OpMul))
	lib.MakeRoot(proc)

	app := NewForest()
	ext, _ := app.AddExternal(lib.NodeDigest(proc))
	call, _ := app.AddCall(ext)
	app.MakeRoot(call)

	events := collect(t, app, lib)
	want := []IterEvent{
		{Kind: EventNode, Forest: 1, Node: proc},
		{Kind: EventExternalResolved, Forest: 0, Node: ext, ReplacementForest: 1, ReplacementNode: proc},
		{Kind: EventNode, Forest: 0, Node: call},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestIteratorKeepsUnresolvedExternal(t *testing.T) {
	f := NewForest()
	ext, _ := f.AddExternal(digest.Hash([]byte("elsewhere")))
	events := collect(t, f)
	if len(events) != 1 || events[0].Kind != EventNode || events[0].Node != ext {
		t.Fatalf("events = %+v", events)
	}
}

func TestIteratorFirstMatchWins(t *testing.T) {
	f1 := NewForest()
	p1 := mustBlock(t, f1, Op(OpAdd))
	f2 := NewForest()
	mustBlock(t, f2, Op(OpAdd))
	f3 := NewForest()
	ext, _ := f3.AddExternal(f1.NodeDigest(p1))

	for _, ev := range collect(t, f1, f2, f3) {
		if ev.Kind == EventExternalResolved {
			if ev.Forest != 2 || ev.Node != ext || ev.ReplacementForest != 0 || ev.ReplacementNode != p1 {
				t.Fatalf("unexpected resolution %+v", ev)
			}
			return
		}
	}
	t.Fatalf("external was not resolved")
}
