package xltpl

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedStrings_LookupOrInsert(t *testing.T) {
	ss := NewSharedStrings()
	first := ss.LookupOrInsert("hello")
	second := ss.LookupOrInsert("hello")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, ss.Len())

	other := ss.LookupOrInsert("world")
	assert.Equal(t, 1, other)
	assert.Equal(t, 2, ss.Len())
}

func TestSharedStrings_Replace(t *testing.T) {
	ss := NewSharedStrings()
	idx := ss.LookupOrInsert("${name}")
	ss.LookupOrInsert("keep")

	assert.Equal(t, idx, ss.Replace("${name}", "Alice"))
	got, ok := ss.Get(idx)
	require.True(t, ok)
	assert.Equal(t, "Alice", got)
	assert.Equal(t, idx, ss.LookupOrInsert("Alice"))
	assert.Equal(t, 2, ss.LookupOrInsert("${name}"), "old text is gone and gets a new slot")

	appended := ss.Replace("missing", "fresh")
	assert.Equal(t, 3, appended)
}

func TestSharedStrings_LoadAndWrite(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="3" uniqueCount="3">` +
		`<si><t>plain</t></si>` +
		`<si><r><rPr><b/></rPr><t>rich </t></r><r><t>text</t></r></si>` +
		`<si><t>${x}</t></si>` +
		`</sst>`))
	ss := loadSharedStrings(doc.Root())
	require.Equal(t, 3, ss.Len())
	rich, _ := ss.Get(1)
	assert.Equal(t, "rich text", rich)

	ss.Replace("${x}", " padded ")
	ss.LookupOrInsert("new")
	ss.writeTo(doc.Root())

	sis := doc.Root().SelectElements("si")
	require.Len(t, sis, 4)
	assert.NotNil(t, sis[1].SelectElement("r"), "untouched rich text is kept")
	assert.Equal(t, "preserve", sis[2].SelectElement("t").SelectAttrValue("xml:space", ""))
	assert.Equal(t, "new", sis[3].SelectElement("t").Text())
	assert.Equal(t, "4", doc.Root().SelectAttrValue("uniqueCount", ""))
}
