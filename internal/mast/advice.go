package mast

import (
	"bytes"
	"slices"

	"github.com/obellish/vmm-sub002/internal/digest"
)

// AdviceMap holds non-deterministic inputs for the VM keyed by digest.
type AdviceMap struct {
	entries map[digest.Digest][]byte
}

// Insert stores a copy of value under key, replacing any previous value.
func (m *AdviceMap) Insert(key digest.Digest, value []byte) {
	if m.entries == nil {
		m.entries = make(map[digest.Digest][]byte)
	}
	m.entries[key] = bytes.Clone(value)
}

// Get returns the value stored under key. The slice must not be modified.
func (m *AdviceMap) Get(key digest.Digest) ([]byte, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Len returns the number of entries.
func (m *AdviceMap) Len() int { return len(m.entries) }

// Keys returns all keys in ascending byte order.
func (m *AdviceMap) Keys() []digest.Digest {
	keys := make([]digest.Digest, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b digest.Digest) int { return bytes.Compare(a[:], b[:]) })
	return keys
}

// MergeFrom copies every entry of other into m. An existing key with a
// different value is a conflict and nothing is copied.
func (m *AdviceMap) MergeFrom(other *AdviceMap) error {
	for _, k := range other.Keys() {
		if v, ok := m.entries[k]; ok && !bytes.Equal(v, other.entries[k]) {
			return &ForestError{Kind: ErrAdviceMapKeyCollisionOnMerge, Key: k}
		}
	}
	for k, v := range other.entries {
		m.Insert(k, v)
	}
	return nil
}

// Equal reports whether both maps hold the same entries.
func (m *AdviceMap) Equal(other *AdviceMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	for k, v := range m.entries {
		ov, ok := other.entries[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}
