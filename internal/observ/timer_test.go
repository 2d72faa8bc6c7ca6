package observ

import (
	"errors"
	"strings"
	"testing"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	read := tm.Begin("read")
	tm.End(read, "")
	if err := tm.Time("merge", func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("Time should return fn's error")
	}
	tm.End(42, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Name != "read" || r.Phases[1].Note != "failed" {
		t.Fatalf("report = %+v", r)
	}
	s := tm.Summary()
	if !strings.Contains(s, "merge") || !strings.Contains(s, "total") {
		t.Fatalf("summary:\n%s", s)
	}
}

func TestEmptyTimer(t *testing.T) {
	if r := NewTimer().Report(); len(r.Phases) != 0 || r.TotalMS != 0 {
		t.Fatalf("empty timer report = %+v", r)
	}
}
