package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/obellish/vmm-sub002/internal/pipeline"
)

func newModel(files ...string) *progressModel {
	return NewProgressModel("link demo", files, nil).(*progressModel)
}

func TestApplyFileEvents(t *testing.T) {
	m := newModel("a.masf", "b.masf")
	steps := []struct {
		ev   pipeline.Event
		want string
	}{
		{pipeline.Event{File: "a.masf", Stage: pipeline.StageRead, Status: pipeline.StatusWorking}, "reading"},
		{pipeline.Event{File: "a.masf", Stage: pipeline.StageRead, Status: pipeline.StatusDone}, "read"},
		{pipeline.Event{File: "a.masf", Stage: pipeline.StageDecode, Status: pipeline.StatusWorking}, "decoding"},
		{pipeline.Event{File: "a.masf", Stage: pipeline.StageDecode, Status: pipeline.StatusDone}, "decoded"},
	}
	for _, s := range steps {
		m.applyEvent(s.ev)
		if got := m.items[0].status; got != s.want {
			t.Fatalf("after %s/%s status = %q, want %q", s.ev.Stage, s.ev.Status, got, s.want)
		}
	}
	if m.items[1].status != "queued" {
		t.Fatalf("untouched file changed to %q", m.items[1].status)
	}
	// unknown files are ignored
	m.applyEvent(pipeline.Event{File: "zzz", Stage: pipeline.StageRead, Status: pipeline.StatusDone})
}

func TestPercent(t *testing.T) {
	m := newModel("a", "b")
	if p := m.percent(); p != 0 {
		t.Fatalf("initial percent = %v", p)
	}
	for _, f := range []string{"a", "b"} {
		m.applyEvent(pipeline.Event{File: f, Stage: pipeline.StageDecode, Status: pipeline.StatusDone})
	}
	if p := m.percent(); p < fileShare-1e-9 || p > fileShare+1e-9 {
		t.Fatalf("percent after decode = %v, want %v", p, fileShare)
	}
	for _, s := range linkStages {
		m.applyEvent(pipeline.Event{Stage: s, Status: pipeline.StatusDone})
	}
	if p := m.percent(); p < 1-1e-9 {
		t.Fatalf("percent after all stages = %v", p)
	}

	// progress never goes back
	m.applyEvent(pipeline.Event{File: "a", Stage: pipeline.StageRead, Status: pipeline.StatusWorking})
	if m.items[0].weight != 1 {
		t.Fatalf("weight went back to %v", m.items[0].weight)
	}
}

func TestStageHeader(t *testing.T) {
	m := newModel("a")
	m.applyEvent(pipeline.Event{Stage: pipeline.StageMerge, Status: pipeline.StatusWorking})
	if !strings.Contains(m.View(), "merging") {
		t.Fatalf("header lacks stage label:\n%s", m.View())
	}
	m.applyEvent(pipeline.Event{Stage: pipeline.StageMerge, Status: pipeline.StatusError, Err: errors.New("boom")})
	m.done = true
	if v := m.View(); !strings.Contains(v, "failed: link demo (merge failed)") {
		t.Fatalf("unexpected failure header:\n%s", v)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"abcdef", 3, "abc"},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
	// wide runes count double
	if got := truncate("日本語のパス", 7); runewidth.StringWidth(got) > 7 {
		t.Fatalf("truncated width %d > 7: %q", runewidth.StringWidth(got), got)
	}
}
