package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obellish/vmm-sub002/internal/digest"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, manifestName)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	entry := digest.Hash([]byte("entry"))
	kernel := digest.Hash([]byte("kernel"))
	writeManifest(t, dir, `
[link]
name = "stdlib"
inputs = ["a.masf", "sub/b.masf"]
output = "out/stdlib.masp"
entrypoint = "`+entry.String()+`"
kernel = ["0x`+kernel.String()+`"]
jobs = 4

[cache]
enabled = false
dir = ".cache"
`)
	nested := filepath.Join(dir, "x", "y")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, found, err := loadManifest(nested)
	if err != nil || !found {
		t.Fatalf("loadManifest = %v, %v", found, err)
	}
	if m.Config.Link.Name != "stdlib" || m.Config.Link.Jobs != 4 {
		t.Fatalf("unexpected config: %+v", m.Config)
	}
	want := []string{filepath.Join(dir, "a.masf"), filepath.Join(dir, "sub", "b.masf")}
	if len(m.Inputs) != 2 || m.Inputs[0] != want[0] || m.Inputs[1] != want[1] {
		t.Fatalf("inputs = %v, want %v", m.Inputs, want)
	}
	if m.Output != filepath.Join(dir, "out", "stdlib.masp") {
		t.Fatalf("output = %s", m.Output)
	}
	if m.Entrypoint == nil || *m.Entrypoint != entry {
		t.Fatalf("entrypoint not parsed")
	}
	if len(m.Kernel) != 1 || m.Kernel[0] != kernel {
		t.Fatalf("kernel = %v", m.Kernel)
	}
	if m.CacheEnabled || m.CacheDir != filepath.Join(dir, ".cache") {
		t.Fatalf("cache settings = %v %q", m.CacheEnabled, m.CacheDir)
	}
}

func TestManifestCacheDefault(t *testing.T) {
	dir := t.TempDir()
	p := writeManifest(t, dir, "[link]\nname = \"x\"\ninputs = [\"a.masf\"]\noutput = \"x.masf\"\n")
	m, err := loadManifestFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !m.CacheEnabled || m.CacheDir != "" || m.Entrypoint != nil {
		t.Fatalf("unexpected defaults: %+v", m)
	}
}

func TestManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no link table", "[cache]\nenabled = true\n", "missing [link]"},
		{"no name", "[link]\ninputs = [\"a\"]\noutput = \"o\"\n", "[link].name"},
		{"empty inputs", "[link]\nname = \"n\"\ninputs = []\noutput = \"o\"\n", "[link].inputs"},
		{"no output", "[link]\nname = \"n\"\ninputs = [\"a\"]\n", "[link].output"},
		{"bad entry", "[link]\nname = \"n\"\ninputs = [\"a\"]\noutput = \"o\"\nentrypoint = \"zz\"\n", "[link].entrypoint"},
		{"kernel alone", "[link]\nname = \"n\"\ninputs = [\"a\"]\noutput = \"o\"\nkernel = [\"" + digest.Zero.String() + "\"]\n", "requires [link].entrypoint"},
		{"negative jobs", "[link]\nname = \"n\"\ninputs = [\"a\"]\noutput = \"o\"\njobs = -1\n", "[link].jobs"},
		{"unknown key", "[link]\nname = \"n\"\ninputs = [\"a\"]\noutput = \"o\"\noutptu = \"p\"\n", "unknown key"},
		{"bad toml", "[link\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeManifest(t, t.TempDir(), tt.body)
			_, err := loadManifestFile(p)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFindManifestMissing(t *testing.T) {
	// a fresh temp dir normally has no mast.toml above it
	dir := t.TempDir()
	path, found, err := findManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if found && !strings.HasPrefix(dir, filepath.Dir(path)) {
		t.Fatalf("found unrelated manifest %s", path)
	}
}
