package form

import (
	"sync"

	"github.com/matthewbaird/valuation/internal/catalog"
)

// Mapper converts records between the nested and flat shapes using one
// field catalog.
type Mapper struct {
	cat *catalog.Catalog
}

// NewMapper returns a Mapper over the given catalog.
func NewMapper(c *catalog.Catalog) *Mapper {
	return &Mapper{cat: c}
}

// Catalog returns the catalog the mapper was built with.
func (m *Mapper) Catalog() *catalog.Catalog {
	return m.cat
}

var (
	defaultOnce   sync.Once
	defaultMapper *Mapper
)

// Default returns the mapper over the embedded catalog.
func Default() *Mapper {
	defaultOnce.Do(func() {
		defaultMapper = NewMapper(catalog.Default())
	})
	return defaultMapper
}

// Flatten converts n with the embedded catalog.
func Flatten(n NestedRecord) FlatRecord {
	return Default().Flatten(n)
}

// Presence is the set of flat keys whose source was present in a record.
type Presence map[string]bool

// Flatten produces a complete FlatRecord from n: every catalog key is set,
// absent scalars read as "" and the line-item array defaults to empty.
// An input that is already flat is returned as an unchanged copy.
func (m *Mapper) Flatten(n NestedRecord) FlatRecord {
	flat, _ := m.FlattenWithPresence(n)
	return flat
}

// FlattenWithPresence is Flatten that also reports which flat keys were
// actually supplied by n.
func (m *Mapper) FlattenWithPresence(n NestedRecord) (FlatRecord, Presence) {
	if m.IsFlat(n) {
		present := make(Presence, len(n))
		for k := range n {
			present[k] = true
		}
		return FlatRecord(cloneMap(n)), present
	}

	entries := m.cat.Entries()
	flat := make(FlatRecord, len(entries)+len(n))
	present := make(Presence)

	for k, v := range n {
		if m.cat.IsRootPath(k) {
			if mv, ok := asMap(v); ok && m.cat.IsBranch(k) {
				m.collectUnknown(flat, present, k, mv)
			}
			continue
		}
		if _, known := m.cat.Lookup(k); known {
			continue
		}
		flat[k] = cloneValue(v)
		present[k] = true
	}

	root := map[string]any(n)
	for _, e := range entries {
		if _, aliased := m.cat.AliasFor(e.FlatKey); aliased {
			continue
		}
		v, ok := lookupPath(root, catalog.SplitPath(e.Path))
		switch e.Kind {
		case catalog.KindScalar:
			flat[e.FlatKey] = Scalar(v)
			if ok {
				present[e.FlatKey] = true
			}
		case catalog.KindContainer:
			if mv, isMap := asMap(v); ok && isMap {
				flat[e.FlatKey] = cloneMap(mv)
				present[e.FlatKey] = true
			} else {
				flat[e.FlatKey] = map[string]any{}
			}
		case catalog.KindMedia:
			if ok && v != nil {
				flat[e.FlatKey] = cloneValue(v)
				present[e.FlatKey] = true
			}
		case catalog.KindArray:
			flat[e.FlatKey] = numberItems(LineItemsOf(v))
			if ok {
				present[e.FlatKey] = true
			}
		}
	}

	for _, a := range m.cat.Aliases() {
		value, found := m.flattenAlias(root, a)
		flat[a.Canonical] = value
		flat[a.Legacy] = value
		if found {
			present[a.Canonical] = true
			present[a.Legacy] = true
		}
	}

	return flat, present
}

// collectUnknown copies every value under the branch at path that the
// catalog has no entry for into flat, keyed by its dot path, e.g.
// "clientDetails.panNumber". Nest writes such keys back in place.
func (m *Mapper) collectUnknown(flat FlatRecord, present Presence, path string, node map[string]any) {
	for k, v := range node {
		child := path + "." + k
		switch {
		case m.cat.HasPath(child):
		case m.cat.IsBranch(child):
			if mv, ok := asMap(v); ok {
				m.collectUnknown(flat, present, child, mv)
			}
		default:
			flat[child] = cloneValue(v)
			present[child] = true
		}
	}
}

// flattenAlias resolves one alias group from a nested record. Sources are
// checked in a fixed order and the first non-empty one wins: the canonical
// nested path, then a legacy key at the root, then a canonical key at the
// root.
func (m *Mapper) flattenAlias(root map[string]any, a catalog.Alias) (string, bool) {
	found := false
	sources := [][]string{
		catalog.SplitPath(a.Path),
		{a.Legacy},
		{a.Canonical},
	}
	for _, src := range sources {
		v, ok := lookupPath(root, src)
		if !ok {
			continue
		}
		found = true
		if s := Scalar(v); s != "" {
			return s, true
		}
	}
	return "", found
}

// IsFlat reports whether n is already a flat record: it carries one of the
// catalog's flat marker keys at its root and none of the top-level groups.
func (m *Mapper) IsFlat(n NestedRecord) bool {
	marked := false
	for _, k := range m.cat.FlatMarkers() {
		if _, ok := n[k]; ok {
			marked = true
			break
		}
	}
	if !marked {
		return false
	}
	for k := range n {
		if m.cat.IsTopGroup(k) {
			return false
		}
	}
	return true
}
