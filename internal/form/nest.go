package form

import (
	"strings"

	"github.com/matthewbaird/valuation/internal/catalog"
	"github.com/matthewbaird/valuation/internal/types"
)

// Nest converts f with the embedded catalog.
func Nest(f FlatRecord) NestedRecord {
	return Default().Nest(f)
}

// Nest builds the persisted record from a flat one. Every catalog group is
// present, leaves default to "", the line-item array defaults to empty.
// Dot-path keys collected by Flatten go back under their group; any other
// key unknown to the catalog is copied to the root unchanged.
func (m *Mapper) Nest(f FlatRecord) NestedRecord {
	out := make(map[string]any)

	for _, e := range m.cat.Entries() {
		if e.AliasOf != "" {
			continue
		}
		path := catalog.SplitPath(e.Path)
		switch e.Kind {
		case catalog.KindScalar:
			if a, ok := m.cat.AliasFor(e.FlatKey); ok {
				setPath(out, path, nestAlias(f, a))
				continue
			}
			setPath(out, path, f.String(e.FlatKey))
		case catalog.KindContainer:
			if mv, ok := asMap(f[e.FlatKey]); ok {
				setPath(out, path, cloneMap(mv))
			} else {
				setPath(out, path, map[string]any{})
			}
		case catalog.KindMedia:
			if v, ok := f[e.FlatKey]; ok && v != nil {
				setPath(out, path, cloneValue(v))
			}
		case catalog.KindArray:
			setPath(out, path, numberItems(LineItemsOf(f[e.FlatKey])))
		}
	}

	for k, v := range f {
		if _, known := m.cat.Lookup(k); known {
			continue
		}
		if m.cat.IsRootPath(k) {
			continue
		}
		if path, ok := m.unknownPath(k); ok {
			setPath(out, path, cloneValue(v))
			continue
		}
		out[k] = cloneValue(v)
	}

	return NestedRecord(out)
}

// unknownPath splits a dot-path key whose parent is a catalog branch and
// which does not itself shadow a catalog path or branch.
func (m *Mapper) unknownPath(key string) ([]string, bool) {
	i := strings.LastIndexByte(key, '.')
	if i <= 0 || !m.cat.IsBranch(key[:i]) {
		return nil, false
	}
	if m.cat.HasPath(key) || m.cat.IsBranch(key) {
		return nil, false
	}
	return catalog.SplitPath(key), true
}

// nestAlias picks the value written at an alias group's nested path. Keys
// are checked legacy first, canonical last; the last non-empty one wins.
func nestAlias(f FlatRecord, a catalog.Alias) string {
	value := ""
	for _, k := range []string{a.Legacy, a.Canonical} {
		if s := f.String(k); s != "" {
			value = s
		}
	}
	return value
}

// Items returns the line items of a nested record.
func (m *Mapper) Items(n NestedRecord) []types.LineItem {
	v, _ := lookupPath(map[string]any(n), catalog.SplitPath(m.cat.Array().Path))
	return numberItems(LineItemsOf(v))
}
