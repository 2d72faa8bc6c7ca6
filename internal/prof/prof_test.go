package prof

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPUPath:   filepath.Join(dir, "cpu.pprof"),
		MemPath:   filepath.Join(dir, "mem.pprof"),
		TracePath: filepath.Join(dir, "trace.out"),
	}
	s, err := Start(opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Active() {
		t.Fatalf("session with outputs is not active")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	for _, p := range []string{opts.CPUPath, opts.MemPath, opts.TracePath} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("missing profile: %v", err)
		}
		if info.Size() == 0 && p == opts.MemPath {
			t.Fatalf("empty heap profile")
		}
	}
}

func TestEmptySession(t *testing.T) {
	s, err := Start(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Active() {
		t.Fatalf("empty session reports active")
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	var nilSession *Session
	if nilSession.Active() || nilSession.Stop() != nil {
		t.Fatalf("nil session misbehaves")
	}
}

func TestStartFailure(t *testing.T) {
	_, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.pprof")})
	if err == nil {
		t.Fatalf("expected an error for an uncreatable path")
	}
	// the failed start must not leave a profile running
	s, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "cpu.pprof")})
	if err != nil {
		t.Fatalf("profiler left running: %v", err)
	}
	_ = s.Stop()
}
