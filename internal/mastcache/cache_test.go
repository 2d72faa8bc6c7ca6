package mastcache

import (
	"os"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/obellish/vmm-sub002/internal/digest"
)

func TestPutGet(t *testing.T) {
	c, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := Key(digest.Hash([]byte("opts")), digest.Hash([]byte("a")), digest.Hash([]byte("b")))
	in := &Payload{
		Name:        "stdlib",
		Kind:        1,
		Inputs:      []string{"a.masf", "b.masf"},
		InputHashes: []digest.Digest{digest.Hash([]byte("a")), digest.Hash([]byte("b"))},
		Nodes:       12,
		Procedures:  []digest.Digest{digest.Hash([]byte("p"))},
		ProgramHash: digest.Hash([]byte("h")),
		Artifact:    []byte("MAST\x00\x01\x00\x00"),
	}
	if err := c.Put(key, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var out Payload
	ok, err := c.Get(key, &out)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if out.Name != in.Name || out.Nodes != 12 || out.ProgramHash != in.ProgramHash || string(out.Artifact) != string(in.Artifact) {
		t.Fatalf("payload changed: %+v", out)
	}
	if len(out.InputHashes) != 2 || out.InputHashes[1] != in.InputHashes[1] {
		t.Fatalf("input hashes changed: %v", out.InputHashes)
	}
	if out.Schema != SchemaVersion || out.Created.IsZero() {
		t.Fatalf("schema/created not stamped: %d %v", out.Schema, out.Created)
	}
}

func TestMissAndRemove(t *testing.T) {
	c, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := digest.Hash([]byte("k"))
	var out Payload
	if ok, err := c.Get(key, &out); ok || err != nil {
		t.Fatalf("empty cache hit: %v %v", ok, err)
	}
	if err := c.Put(key, &Payload{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(key); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Get(key, &out); ok {
		t.Fatalf("removed entry still present")
	}
}

func TestSchemaMismatchIsMiss(t *testing.T) {
	c, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := digest.Hash([]byte("k"))
	if err := c.Put(key, &Payload{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	// rewrite the entry with a foreign schema
	data, err := msgpack.Marshal(&Payload{Schema: SchemaVersion + 1, Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.pathFor(key), data, 0o644); err != nil {
		t.Fatal(err)
	}
	var out Payload
	if ok, err := c.Get(key, &out); ok || err != nil {
		t.Fatalf("foreign schema should miss: %v %v", ok, err)
	}
}

func TestDropAll(t *testing.T) {
	c, err := OpenDir(t.TempDir() + "/cache")
	if err != nil {
		t.Fatal(err)
	}
	key := digest.Hash([]byte("k"))
	if err := c.Put(key, &Payload{}); err != nil {
		t.Fatal(err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	var out Payload
	if ok, _ := c.Get(key, &out); ok {
		t.Fatalf("entry survived DropAll")
	}
	if err := c.Put(key, &Payload{}); err != nil {
		t.Fatalf("cache unusable after DropAll: %v", err)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	if err := c.Put(digest.Zero, &Payload{}); err != nil {
		t.Fatal(err)
	}
	var out Payload
	if ok, err := c.Get(digest.Zero, &out); ok || err != nil {
		t.Fatalf("nil cache hit")
	}
}

func TestKeyDependsOnOrder(t *testing.T) {
	a, b := digest.Hash([]byte("a")), digest.Hash([]byte("b"))
	if Key(digest.Zero, a, b) == Key(digest.Zero, b, a) {
		t.Fatalf("key ignores input order")
	}
}
