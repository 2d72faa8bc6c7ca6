package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/obellish/vmm-sub002/internal/digest"
)

const manifestName = "mast.toml"

const noManifestMessage = "no mast.toml found\nplease list the artifacts explicitly, e.g.:\n  mast link -o out.masf a.masf b.masf"

type linkManifest struct {
	Path   string
	Root   string
	Config manifestConfig

	// resolved from Config
	Inputs       []string
	Output       string
	Entrypoint   *digest.Digest
	Kernel       []digest.Digest
	CacheEnabled bool
	CacheDir     string
}

type manifestConfig struct {
	Link  linkConfig  `toml:"link"`
	Cache cacheConfig `toml:"cache"`
}

type linkConfig struct {
	Name       string   `toml:"name"`
	Inputs     []string `toml:"inputs"`
	Output     string   `toml:"output"`
	Entrypoint string   `toml:"entrypoint"`
	Kernel     []string `toml:"kernel"`
	Jobs       int      `toml:"jobs"`
}

type cacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadManifest(startDir string) (*linkManifest, bool, error) {
	path, ok, err := findManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := loadManifestFile(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

func loadManifestFile(path string) (*linkManifest, error) {
	var cfg manifestConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if !meta.IsDefined("link") {
		return nil, fmt.Errorf("%s: missing [link]", path)
	}
	if !meta.IsDefined("link", "name") || strings.TrimSpace(cfg.Link.Name) == "" {
		return nil, fmt.Errorf("%s: missing [link].name", path)
	}
	if !meta.IsDefined("link", "inputs") || len(cfg.Link.Inputs) == 0 {
		return nil, fmt.Errorf("%s: [link].inputs must list at least one artifact", path)
	}
	if !meta.IsDefined("link", "output") || strings.TrimSpace(cfg.Link.Output) == "" {
		return nil, fmt.Errorf("%s: missing [link].output", path)
	}
	if cfg.Link.Jobs < 0 {
		return nil, fmt.Errorf("%s: [link].jobs must not be negative", path)
	}

	root := filepath.Dir(path)
	m := &linkManifest{
		Path:   path,
		Root:   root,
		Config: cfg,
		Output: resolvePath(root, cfg.Link.Output),
		// the cache is on unless switched off explicitly
		CacheEnabled: !meta.IsDefined("cache", "enabled") || cfg.Cache.Enabled,
	}
	if cfg.Cache.Dir != "" {
		m.CacheDir = resolvePath(root, cfg.Cache.Dir)
	}
	for _, in := range cfg.Link.Inputs {
		if strings.TrimSpace(in) == "" {
			return nil, fmt.Errorf("%s: [link].inputs contains an empty path", path)
		}
		m.Inputs = append(m.Inputs, resolvePath(root, in))
	}
	if e := strings.TrimSpace(cfg.Link.Entrypoint); e != "" {
		d, err := digest.Parse(e)
		if err != nil {
			return nil, fmt.Errorf("%s: [link].entrypoint: %w", path, err)
		}
		m.Entrypoint = &d
	}
	kernel, err := parseDigests(cfg.Link.Kernel)
	if err != nil {
		return nil, fmt.Errorf("%s: [link].kernel: %w", path, err)
	}
	if len(kernel) > 0 && m.Entrypoint == nil {
		return nil, fmt.Errorf("%s: [link].kernel requires [link].entrypoint", path)
	}
	m.Kernel = kernel
	return m, nil
}

func resolvePath(root, p string) string {
	p = filepath.FromSlash(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func parseDigests(values []string) ([]digest.Digest, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]digest.Digest, 0, len(values))
	for _, v := range values {
		d, err := digest.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", v, err)
		}
		out = append(out, d)
	}
	return out, nil
}
