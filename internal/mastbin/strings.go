package mastbin

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// StringID indexes the string table. Index 0 is always the empty string.
type StringID uint32

// StringTable deduplicates the strings referenced by decorators.
type StringTable struct {
	byID  []string
	index map[string]StringID
}

// NewStringTable returns a table holding only the empty string.
func NewStringTable() *StringTable {
	return &StringTable{
		byID:  []string{""},
		index: map[string]StringID{"": 0},
	}
}

// Intern returns the id of s, adding it if needed.
func (t *StringTable) Intern(s string) (StringID, error) {
	if id, ok := t.index[s]; ok {
		return id, nil
	}
	n, err := safecast.Conv[uint32](len(t.byID))
	if err != nil {
		return 0, fmt.Errorf("string table overflow: %w", err)
	}
	id := StringID(n)
	t.byID = append(t.byID, s)
	t.index[s] = id
	return id, nil
}

// Lookup returns the string with the given id.
func (t *StringTable) Lookup(id StringID) (string, bool) {
	if int(id) >= len(t.byID) {
		return "", false
	}
	return t.byID[id], true
}

// Len counts the strings, the reserved empty string included.
func (t *StringTable) Len() int { return len(t.byID) }

// Strings returns a copy of the table in id order.
func (t *StringTable) Strings() []string { return slices.Clone(t.byID) }

// stringTableFrom rebuilds a table from decoded entries. Entry 0 must be empty
// and entries must be unique, as the writer produces them.
func stringTableFrom(entries []string) (*StringTable, error) {
	if len(entries) == 0 || entries[0] != "" {
		return nil, fmt.Errorf("string table must start with the empty string")
	}
	t := &StringTable{byID: entries, index: make(map[string]StringID, len(entries))}
	for i, s := range entries {
		if _, dup := t.index[s]; dup {
			return nil, fmt.Errorf("duplicate string table entry %d", i)
		}
		t.index[s] = StringID(i)
	}
	return t, nil
}
