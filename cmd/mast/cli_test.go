package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/mastbin"
	"github.com/obellish/vmm-sub002/internal/pipeline"
	"github.com/obellish/vmm-sub002/internal/program"
)

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in   string
		want uiMode
		ok   bool
	}{
		{"", uiModeAuto, true},
		{"AUTO", uiModeAuto, true},
		{" on ", uiModeOn, true},
		{"off", uiModeOff, true},
		{"sometimes", "", false},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Fatalf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if !shouldUseTUI(uiModeOn) || shouldUseTUI(uiModeOff) {
		t.Fatalf("explicit modes ignored")
	}
}

func TestReplaceExt(t *testing.T) {
	tests := map[string]string{
		"lib.masf":     "lib.masp",
		"dir/lib.masf": "dir/lib.masp",
		"dir.v2/lib":   "dir.v2/lib.masp",
		"noext":        "noext.masp",
		"a/b.c/d.masf": "a/b.c/d.masp",
	}
	for in, want := range tests {
		if got := replaceExt(in, ".masp"); got != want {
			t.Fatalf("replaceExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func sampleArtifact(t *testing.T) *mastbin.Artifact {
	t.Helper()
	f := mast.NewForest()
	dec, err := f.AddDecorator(mast.Trace{ID: 7})
	if err != nil {
		t.Fatal(err)
	}
	blk, err := f.AddBlock([]mast.Operation{mast.Push(1), mast.Op(mast.OpAdd)}, []mast.DecoratedOp{{OpIndex: 1, Decorator: dec}})
	if err != nil {
		t.Fatal(err)
	}
	loop, err := f.AddLoop(blk)
	if err != nil {
		t.Fatal(err)
	}
	f.MakeRoot(loop)
	f.AdviceMap().Insert(f.NodeDigest(loop), []byte{1, 2, 3})
	p, err := program.NewProgram(f, loop)
	if err != nil {
		t.Fatal(err)
	}
	return &mastbin.Artifact{Kind: mastbin.KindProgram, Forest: f, Program: p}
}

func TestRenderInspect(t *testing.T) {
	color.NoColor = true
	a := sampleArtifact(t)
	var buf bytes.Buffer
	renderInspect(&buf, "app.masp", 123, a, inspectOptions{nodes: true, ops: true, decorators: true, advice: true, format: "pretty"})
	out := buf.String()
	for _, want := range []string{
		"kind        program (123 bytes)",
		"nodes       2",
		"while node#0",
		"trace(7)",
		"010203",
		"entrypoint  node#1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output lacks %q:\n%s", want, out)
		}
	}
}

func TestRenderInspectJSON(t *testing.T) {
	a := sampleArtifact(t)
	var buf bytes.Buffer
	if err := renderInspectJSON(&buf, "app.masp", 1, a, inspectOptions{nodes: true, format: "json"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"kind": "program"`) || !strings.Contains(out, `"children": [`) {
		t.Fatalf("unexpected json:\n%s", out)
	}
	if !strings.Contains(out, a.Program.Hash().String()) {
		t.Fatalf("json lacks entrypoint digest")
	}
}

func TestPrintStageTimings(t *testing.T) {
	var timings pipeline.Timings
	timings.Set(pipeline.StageRead, 2*time.Millisecond)
	timings.Set(pipeline.StageMerge, 3*time.Millisecond)
	var buf bytes.Buffer
	printStageTimings(&buf, timings)
	want := "read 2.0 ms\nmerge 3.0 ms\ntotal 5.0 ms\n"
	if buf.String() != want {
		t.Fatalf("timings output = %q, want %q", buf.String(), want)
	}
}
