package xltpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func hyperlinkTargets(t *testing.T, wb *Workbook) []string {
	t.Helper()
	var targets []string
	rels := partDoc(t, wb, "xl/worksheets/_rels/sheet1.xml.rels").Root()
	for _, rel := range rels.SelectElements("Relationship") {
		if relKind(rel) == "hyperlink" {
			targets = append(targets, rel.SelectAttrValue("Target", ""))
		}
	}
	return targets
}

func TestSubstituteHyperlinks(t *testing.T) {
	wb := openTemplate(t, func(f *excelize.File) {
		f.SetCellValue("Sheet1", "A1", "Mail")
		require.NoError(t, f.SetCellHyperLink("Sheet1", "A1", "mailto:${email}?subject=${subject}", "External"))
		f.SetCellValue("Sheet1", "A2", "Profile")
		require.NoError(t, f.SetCellHyperLink("Sheet1", "A2", "https://example.com/users/$%257Bid%257D", "External"))
		f.SetCellValue("Sheet1", "A3", "Other")
		require.NoError(t, f.SetCellHyperLink("Sheet1", "A3", "https://example.com/${missing}", "External"))
	})
	data := map[string]any{"email": "john@bob.com", "subject": "Hello hello", "id": 42}
	require.NoError(t, wb.Substitute("Sheet1", data))

	assert.Equal(t, []string{
		"mailto:john@bob.com?subject=Hello%20hello",
		"https://example.com/users/42",
		"https://example.com/${missing}",
	}, hyperlinkTargets(t, wb))
}

// Hyperlink targets resolve the top-level name only: a bound name
// stringifies as a whole, an unbound one leaves the marker in place.
func TestSubstituteHyperlinks_TopLevelNames(t *testing.T) {
	wb := openTemplate(t, func(f *excelize.File) {
		f.SetCellValue("Sheet1", "A1", "Link")
		require.NoError(t, f.SetCellHyperLink("Sheet1", "A1", "https://example.com/${user.id}", "External"))
		f.SetCellValue("Sheet1", "A2", "Other")
		require.NoError(t, f.SetCellHyperLink("Sheet1", "A2", "https://example.com/${other.id}", "External"))
	})
	require.NoError(t, wb.Substitute("Sheet1", map[string]any{"user": map[string]any{"id": 7}}))
	assert.Equal(t, []string{"https://example.com/", "https://example.com/${other.id}"}, hyperlinkTargets(t, wb))
}

func TestSubstituteHyperlinks_SinglePass(t *testing.T) {
	wb := openTemplate(t, func(f *excelize.File) {
		f.SetCellValue("Sheet1", "A1", "Link")
		require.NoError(t, f.SetCellHyperLink("Sheet1", "A1", "https://example.com/${a}/${b}", "External"))
	})
	require.NoError(t, wb.Substitute("Sheet1", map[string]any{"a": "x", "b": "y"}))
	assert.Equal(t, []string{"https://example.com/x/y"}, hyperlinkTargets(t, wb))
}

func TestEncodeURI(t *testing.T) {
	assert.Equal(t, "a%20b", encodeURI("a b"))
	assert.Equal(t, "https://x.org/?q=1&r=$#frag", encodeURI("https://x.org/?q=1&r=$#frag"))
	assert.Equal(t, "caf%C3%A9", encodeURI("café"))
	assert.Equal(t, "%7Bx%7D", encodeURI("{x}"))
}

func TestDecodeURI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a%20b", "a b"},
		{"%257B", "%7B"},
		{"%7B", "{"},
		{"a%2Fb", "a%2Fb"},
		{"caf%C3%A9", "café"},
	}
	for _, tt := range tests {
		got, err := decodeURI(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"%", "%zz", "%C3", "%C3%28", "%FF"} {
		_, err := decodeURI(bad)
		assert.Error(t, err, bad)
	}
}
