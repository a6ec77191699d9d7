package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalSource is a small but complete catalog document.
const minimalSource = `
groups: {
	header: {
		applicant: "applicant"
		bank:      "bankName"
	}
	site: {
		boundaries: east: {
			saleDeed:  "boundariesEastSaleDeed"
			siteVisit: "boundariesEastSiteVisit"
		}
	}
}
aliases: [{canonical: "boundariesEastSaleDeed", legacy: "boundaryDeedEast"}]
containers: [{flatKey: "coordinates", path: "site.coordinates"}]
media: ["photos"]
extras: ["remarks"]
array: {flatKey: "itemsArray", path: "items"}
flatMarkers: ["applicant"]
`

func TestDefault_Loads(t *testing.T) {
	c := Default()
	require.NotNil(t, c)

	scalars := 0
	for _, g := range []string{
		"valuationHeader", "clientDetails", "propertyDetails", "siteDetails",
		"buildingDetails", "landValuation", "valuation", "documents", "declaration",
	} {
		assert.True(t, c.IsTopGroup(g), g)
		scalars += len(c.LeavesOfGroup(g))
	}
	assert.Equal(t, 121, scalars)
	assert.Len(t, c.Aliases(), 16)
	assert.Len(t, c.Entries(), 121+16+3+3+2+1)
}

func TestResolve(t *testing.T) {
	c := Default()

	tests := []struct {
		key  string
		path string
		ok   bool
	}{
		{"applicant", "clientDetails.applicant", true},
		{"bankName", "valuationHeader.bankName", true},
		{"wardrobesRate", "valuation.amenities.wardrobes.rate", true},
		{"boundariesEastSaleDeed", "siteDetails.boundaries.east.saleDeed", true},
		{"boundaryDeedEast", "siteDetails.boundaries.east.saleDeed", true},
		{"dimensionSiteNorth", "siteDetails.dimensions.north.siteVisit", true},
		{"remarks", "remarks", true},
		{"documentChecklist", "documents.checklist", true},
		{"valuationDetailsArray", "valuationDetails", true},
		{"notAField", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path, ok := c.Resolve(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestLeavesOfGroup(t *testing.T) {
	c := Default()

	assert.Equal(t,
		[]string{"boundariesEastSaleDeed", "boundariesEastSiteVisit"},
		c.LeavesOfGroup("siteDetails.boundaries.east"))
	assert.Equal(t,
		[]string{"wardrobes", "wardrobesRate", "wardrobesValue"},
		c.LeavesOfGroup("valuation.amenities.wardrobes"))
	assert.Len(t, c.LeavesOfGroup("siteDetails.boundaries"), 8)
	assert.Len(t, c.LeavesOfGroup("valuation.amenities"), 27)
	assert.Nil(t, c.LeavesOfGroup("noSuchGroup"))

	// Callers cannot mutate the catalog through the returned slice.
	leaves := c.LeavesOfGroup("clientDetails")
	leaves[0] = "mutated"
	assert.Equal(t, "applicant", c.LeavesOfGroup("clientDetails")[0])
}

func TestAliases_CoverEveryDirection(t *testing.T) {
	c := Default()

	for _, kind := range []string{"boundaries", "dimensions"} {
		for _, dir := range []string{"east", "west", "north", "south"} {
			for _, sub := range []string{"saleDeed", "siteVisit"} {
				path := "siteDetails." + kind + "." + dir + "." + sub
				found := false
				for _, a := range c.Aliases() {
					if a.Path == path {
						found = true
						legacyPath, ok := c.Resolve(a.Legacy)
						require.True(t, ok)
						assert.Equal(t, path, legacyPath)

						e, ok := c.Lookup(a.Legacy)
						require.True(t, ok)
						assert.Equal(t, a.Canonical, e.AliasOf)
					}
				}
				assert.True(t, found, "no alias for %s", path)
			}
		}
	}

	a, ok := c.AliasFor("boundaryDeedEast")
	require.True(t, ok)
	assert.Equal(t, "boundariesEastSaleDeed", a.Canonical)
	_, ok = c.AliasFor("applicant")
	assert.False(t, ok)
}

func TestLoad_Minimal(t *testing.T) {
	c, err := Load([]byte(minimalSource))
	require.NoError(t, err)

	assert.Equal(t, []string{"header", "site", "site.boundaries", "site.boundaries.east"}, c.Groups())
	assert.Equal(t, []string{"boundariesEastSaleDeed", "boundariesEastSiteVisit"}, c.LeavesOfGroup("site"))
	assert.Equal(t, Entry{FlatKey: "itemsArray", Path: "items", Kind: KindArray}, c.Array())
	assert.True(t, c.IsRootPath("items"))
	assert.True(t, c.IsRootPath("photos"))
	assert.True(t, c.IsRootPath("site"))
	assert.False(t, c.IsRootPath("itemsArray"))

	e, ok := c.Lookup("coordinates")
	require.True(t, ok)
	assert.Equal(t, KindContainer, e.Kind)
	assert.Equal(t, "site", e.Group)
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"syntax error": `groups: {`,
		"duplicate key": `
groups: {a: {x: "dup"}, b: {y: "dup"}}
aliases: []
containers: []
media: []
extras: []
array: {flatKey: "itemsArray", path: "items"}
flatMarkers: []
`,
		"invalid key": `
groups: {a: {x: "Not-A-Key"}}
aliases: []
containers: []
media: []
extras: []
array: {flatKey: "itemsArray", path: "items"}
flatMarkers: []
`,
		"alias to unknown canonical": `
groups: {a: {x: "x"}}
aliases: [{canonical: "missing", legacy: "legacyX"}]
containers: []
media: []
extras: []
array: {flatKey: "itemsArray", path: "items"}
flatMarkers: []
`,
		"non-string leaf": `
groups: {a: {x: 5}}
aliases: []
containers: []
media: []
extras: []
array: {flatKey: "itemsArray", path: "items"}
flatMarkers: []
`,
		"unknown marker": `
groups: {a: {x: "x"}}
aliases: []
containers: []
media: []
extras: []
array: {flatKey: "itemsArray", path: "items"}
flatMarkers: ["applicant"]
`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestIsGroup(t *testing.T) {
	c := Default()

	for _, g := range []string{"clientDetails", "siteDetails.boundaries", "siteDetails.boundaries.east", "valuation.summary"} {
		assert.True(t, c.IsGroup(g), g)
	}
	for _, p := range []string{"", "applicant", "clientDetails.applicant", "valuationDetails", "documents.checklist", "siteDetails.boundaries.up"} {
		assert.False(t, c.IsGroup(p), p)
	}
	for _, g := range c.Groups() {
		assert.True(t, c.IsGroup(g), "every listed group answers IsGroup: %s", g)
	}
}

func TestIsBranchAndHasPath(t *testing.T) {
	c := Default()

	assert.True(t, c.IsBranch("siteDetails"))
	assert.True(t, c.IsBranch("siteDetails.boundaries.east"))
	assert.True(t, c.IsBranch("documents"))
	assert.False(t, c.IsBranch("siteDetails.boundaries.east.saleDeed"), "a leaf is not a branch")
	assert.False(t, c.IsBranch("valuationDetails"))

	assert.True(t, c.HasPath("siteDetails.boundaries.east.saleDeed"))
	assert.True(t, c.HasPath("documents.checklist"))
	assert.True(t, c.HasPath("valuationDetails"))
	assert.False(t, c.HasPath("clientDetails"))
	assert.False(t, c.HasPath("clientDetails.panNumber"))
}
