// Package mastcache stores linked artifacts on disk, keyed by a digest of the
// link inputs, so an unchanged link can skip decoding and merging.
package mastcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// SchemaVersion is bumped whenever Payload changes shape. Entries written
// with another schema read as misses.
const SchemaVersion uint16 = 1

// Cache is a directory of msgpack payloads. A nil *Cache is a valid cache that
// never hits. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Payload is one cached link result.
type Payload struct {
	Schema uint16

	Name        string
	Kind        uint8 // mastbin.Kind of Artifact
	Inputs      []string
	InputHashes []digest.Digest

	Nodes       int
	Decorators  int
	Procedures  []digest.Digest
	ProgramHash digest.Digest // zero for forest artifacts

	Artifact []byte // encoded output, ready to be written
	Created  time.Time
}

// Open returns the cache under $XDG_CACHE_HOME/<app>, falling back to
// ~/.cache/<app>.
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDir(filepath.Join(base, app))
}

// OpenDir returns a cache rooted at dir, creating it if needed.
func OpenDir(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key digest.Digest) string {
	return filepath.Join(c.dir, "links", key.String()+".mp")
}

// Put stores payload under key, replacing any previous entry atomically.
func (c *Cache) Put(key digest.Digest, payload *Payload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}()

	stored := *payload
	stored.Schema = SchemaVersion
	if stored.Created.IsZero() {
		stored.Created = time.Now().UTC()
	}
	if err := msgpack.NewEncoder(f).Encode(&stored); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get loads the entry under key into out. A missing entry or one written with
// another schema is a miss, not an error.
func (c *Cache) Get(key digest.Digest, out *Payload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var p Payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key.Short(), err)
	}
	if p.Schema != SchemaVersion {
		return false, nil
	}
	*out = p
	return true, nil
}

// Remove deletes the entry under key, if any.
func (c *Cache) Remove(key digest.Digest) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.pathFor(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// rename first so a concurrent process never sees a half-deleted tree
	old := c.dir + ".old-" + time.Now().Format("20060102150405.000000000")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.MkdirAll(c.dir, 0o755)
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

// Key derives a cache key from the input content hashes and a digest of the
// link options. Input order matters: it decides node ids in the output.
func Key(options digest.Digest, inputs ...digest.Digest) digest.Digest {
	return digest.Combine(options, inputs...)
}
