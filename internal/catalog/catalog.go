// Package catalog is the single source of truth mapping every leaf of the
// nested valuation record to its flat form key.
//
// The catalog is declared in catalog.cue and compiled once with CUE. Lookups
// are pure and never fail: an unknown flat key resolves to ("", false) and
// callers pass such fields through untouched.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed catalog.cue
var defaultSource []byte

// Kind classifies how a catalog entry is stored.
type Kind string

const (
	KindScalar    Kind = "scalar"    // string leaf
	KindContainer Kind = "container" // key-by-key merged object
	KindMedia     Kind = "media"     // opaque upload references
	KindArray     Kind = "array"     // ordered line items
)

// Entry maps one flat key to its nested path.
type Entry struct {
	FlatKey string `json:"flat_key"`
	Path    string `json:"path"`
	Group   string `json:"group,omitempty"` // parent group path, empty at the root
	Kind    Kind   `json:"kind"`
	AliasOf string `json:"alias_of,omitempty"` // set on legacy alias entries
}

// Alias is one group of historical flat keys naming the same nested leaf.
// Legacy is checked before Canonical; the later non-empty value wins.
type Alias struct {
	Canonical string `json:"canonical"`
	Legacy    string `json:"legacy"`
	Path      string `json:"path"`
}

// Catalog is an immutable, loaded field catalog.
type Catalog struct {
	entries     []Entry
	byKey       map[string]int
	groups      map[string][]string
	groupOrder  []string
	topGroups   map[string]bool
	rootNames   map[string]bool
	paths       map[string]bool
	branches    map[string]bool
	aliases     []Alias
	aliasOf     map[string]int
	flatMarkers []string
	array       Entry
}

var flatKeyRe = regexp.MustCompile(`^[a-z][A-Za-z0-9]*$`)

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It panics if the embedded source is
// invalid, which is a build defect rather than a runtime condition.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(defaultSource)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Source returns the embedded CUE source.
func Source() []byte {
	return defaultSource
}

// Load compiles a CUE catalog document.
func Load(src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename("catalog.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compiling catalog: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}

	c := &Catalog{
		byKey:     make(map[string]int),
		groups:    make(map[string][]string),
		topGroups: make(map[string]bool),
		rootNames: make(map[string]bool),
		paths:     make(map[string]bool),
		branches:  make(map[string]bool),
		aliasOf:   make(map[string]int),
	}

	groups := v.LookupPath(cue.ParsePath("groups"))
	iter, err := groups.Fields()
	if err != nil {
		return nil, fmt.Errorf("reading groups: %w", err)
	}
	for iter.Next() {
		name := iter.Selector().String()
		c.topGroups[name] = true
		if err := c.walkGroup(name, iter.Value()); err != nil {
			return nil, err
		}
	}

	var aliases []struct {
		Canonical string `json:"canonical"`
		Legacy    string `json:"legacy"`
	}
	if err := v.LookupPath(cue.ParsePath("aliases")).Decode(&aliases); err != nil {
		return nil, fmt.Errorf("decoding aliases: %w", err)
	}
	for _, a := range aliases {
		idx, ok := c.byKey[a.Canonical]
		if !ok {
			return nil, fmt.Errorf("alias %q: canonical key %q is not a group leaf", a.Legacy, a.Canonical)
		}
		canonical := c.entries[idx]
		if err := c.add(Entry{
			FlatKey: a.Legacy,
			Path:    canonical.Path,
			Group:   canonical.Group,
			Kind:    KindScalar,
			AliasOf: a.Canonical,
		}); err != nil {
			return nil, err
		}
		c.aliasOf[a.Canonical] = len(c.aliases)
		c.aliasOf[a.Legacy] = len(c.aliases)
		c.aliases = append(c.aliases, Alias{Canonical: a.Canonical, Legacy: a.Legacy, Path: canonical.Path})
	}

	var extras, media, markers []string
	if err := v.LookupPath(cue.ParsePath("extras")).Decode(&extras); err != nil {
		return nil, fmt.Errorf("decoding extras: %w", err)
	}
	for _, k := range extras {
		if err := c.add(Entry{FlatKey: k, Path: k, Kind: KindScalar}); err != nil {
			return nil, err
		}
	}
	if err := v.LookupPath(cue.ParsePath("media")).Decode(&media); err != nil {
		return nil, fmt.Errorf("decoding media: %w", err)
	}
	for _, k := range media {
		if err := c.add(Entry{FlatKey: k, Path: k, Kind: KindMedia}); err != nil {
			return nil, err
		}
	}

	var containers []struct {
		FlatKey string `json:"flatKey"`
		Path    string `json:"path"`
	}
	if err := v.LookupPath(cue.ParsePath("containers")).Decode(&containers); err != nil {
		return nil, fmt.Errorf("decoding containers: %w", err)
	}
	for _, ct := range containers {
		if err := c.add(Entry{FlatKey: ct.FlatKey, Path: ct.Path, Group: parentPath(ct.Path), Kind: KindContainer}); err != nil {
			return nil, err
		}
	}

	var array struct {
		FlatKey string `json:"flatKey"`
		Path    string `json:"path"`
	}
	if err := v.LookupPath(cue.ParsePath("array")).Decode(&array); err != nil {
		return nil, fmt.Errorf("decoding array: %w", err)
	}
	c.array = Entry{FlatKey: array.FlatKey, Path: array.Path, Group: parentPath(array.Path), Kind: KindArray}
	if err := c.add(c.array); err != nil {
		return nil, err
	}

	if err := v.LookupPath(cue.ParsePath("flatMarkers")).Decode(&markers); err != nil {
		return nil, fmt.Errorf("decoding flat markers: %w", err)
	}
	for _, m := range markers {
		if _, ok := c.byKey[m]; !ok {
			return nil, fmt.Errorf("flat marker %q is not a catalog key", m)
		}
	}
	c.flatMarkers = markers

	return c, nil
}

// walkGroup records every leaf under the group at path, depth first in
// declaration order, and registers the leaf list of each group it visits.
func (c *Catalog) walkGroup(path string, v cue.Value) error {
	c.groupOrder = append(c.groupOrder, path)
	if _, ok := c.groups[path]; !ok {
		c.groups[path] = nil
	}
	iter, err := v.Fields()
	if err != nil {
		return fmt.Errorf("group %s: %w", path, err)
	}
	for iter.Next() {
		child := path + "." + iter.Selector().String()
		fv := iter.Value()
		switch fv.IncompleteKind() {
		case cue.StructKind:
			if err := c.walkGroup(child, fv); err != nil {
				return err
			}
			c.groups[path] = append(c.groups[path], c.groups[child]...)
		case cue.StringKind:
			key, err := fv.String()
			if err != nil {
				return fmt.Errorf("leaf %s: %w", child, err)
			}
			if err := c.add(Entry{FlatKey: key, Path: child, Group: path, Kind: KindScalar}); err != nil {
				return err
			}
			c.groups[path] = append(c.groups[path], key)
		default:
			return fmt.Errorf("leaf %s: expected a flat key string or a group", child)
		}
	}
	return nil
}

func (c *Catalog) add(e Entry) error {
	if !flatKeyRe.MatchString(e.FlatKey) {
		return fmt.Errorf("invalid flat key %q at %s", e.FlatKey, e.Path)
	}
	if _, dup := c.byKey[e.FlatKey]; dup {
		return fmt.Errorf("duplicate flat key %q", e.FlatKey)
	}
	c.byKey[e.FlatKey] = len(c.entries)
	c.entries = append(c.entries, e)
	c.rootNames[SplitPath(e.Path)[0]] = true
	c.paths[e.Path] = true
	segs := SplitPath(e.Path)
	for i := 1; i < len(segs); i++ {
		c.branches[strings.Join(segs[:i], ".")] = true
	}
	return nil
}

// Resolve returns the nested path for a flat key. Legacy aliases resolve to
// the canonical path.
func (c *Catalog) Resolve(flatKey string) (string, bool) {
	idx, ok := c.byKey[flatKey]
	if !ok {
		return "", false
	}
	return c.entries[idx].Path, true
}

// Lookup returns the catalog entry for a flat key.
func (c *Catalog) Lookup(flatKey string) (Entry, bool) {
	idx, ok := c.byKey[flatKey]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// LeavesOfGroup returns the canonical scalar flat keys in the subtree of the
// given group path, in declaration order. Unknown groups yield nil.
func (c *Catalog) LeavesOfGroup(groupPath string) []string {
	leaves, ok := c.groups[groupPath]
	if !ok {
		return nil
	}
	out := make([]string, len(leaves))
	copy(out, leaves)
	return out
}

// Groups returns every group path, parents before children.
func (c *Catalog) Groups() []string {
	out := make([]string, len(c.groupOrder))
	copy(out, c.groupOrder)
	return out
}

// IsTopGroup reports whether name is a top-level group of the nested record.
func (c *Catalog) IsTopGroup(name string) bool {
	return c.topGroups[name]
}

// IsGroup reports whether path names a group at any depth, e.g.
// "siteDetails" or "siteDetails.boundaries".
func (c *Catalog) IsGroup(path string) bool {
	_, ok := c.groups[path]
	return ok
}

// HasPath reports whether path is the nested path of some catalog entry.
func (c *Catalog) HasPath(path string) bool {
	return c.paths[path]
}

// IsBranch reports whether path is a proper prefix of some entry path, so
// the nested record holds an object there. Unlike IsGroup it also covers
// parents of containers declared outside the groups block.
func (c *Catalog) IsBranch(path string) bool {
	return c.branches[path]
}

// IsRootPath reports whether name is the first segment of some nested
// path, i.e. a root key the nested record reserves.
func (c *Catalog) IsRootPath(name string) bool {
	return c.rootNames[name]
}

// Entries returns every entry, legacy aliases included.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Aliases returns the alias groups in their fixed precedence order.
func (c *Catalog) Aliases() []Alias {
	out := make([]Alias, len(c.aliases))
	copy(out, c.aliases)
	return out
}

// AliasFor returns the alias group a flat key belongs to, if any.
func (c *Catalog) AliasFor(flatKey string) (Alias, bool) {
	idx, ok := c.aliasOf[flatKey]
	if !ok {
		return Alias{}, false
	}
	return c.aliases[idx], true
}

// FlatKeys returns every flat key known to the catalog.
func (c *Catalog) FlatKeys() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.FlatKey
	}
	return out
}

// Array returns the line-item array entry.
func (c *Catalog) Array() Entry {
	return c.array
}

// FlatMarkers returns the keys whose presence at a record root indicates
// the record is already flat.
func (c *Catalog) FlatMarkers() []string {
	out := make([]string, len(c.flatMarkers))
	copy(out, c.flatMarkers)
	return out
}

// SplitPath splits a dot path into segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func parentPath(path string) string {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return ""
	}
	return path[:i]
}
