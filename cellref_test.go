package xltpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCellRef(t *testing.T) {
	tests := []struct {
		in   string
		want CellRef
	}{
		{"A1", CellRef{Col: 1, Row: 1}},
		{"B4", CellRef{Col: 2, Row: 4}},
		{"$C$10", CellRef{Col: 3, ColAbsolute: true, Row: 10, RowAbsolute: true}},
		{"AA7", CellRef{Col: 27, Row: 7}},
		{"Data!$A2", CellRef{Table: "Data", Col: 1, ColAbsolute: true, Row: 2}},
		{"'My Sheet'!B$3", CellRef{Table: "'My Sheet'", Col: 2, Row: 3, RowAbsolute: true}},
		{"$5", CellRef{Row: 5, RowAbsolute: true}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCellRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String(), "round trip")
		})
	}
}

func TestParseCellRef_Malformed(t *testing.T) {
	for _, in := range []string{"", "A", "$A$", "Sheet1!B", "A0", "1A"} {
		_, err := ParseCellRef(in)
		assert.ErrorIs(t, err, ErrMalformedReference, in)
	}
}

func TestColumnName(t *testing.T) {
	cases := map[int]string{1: "A", 26: "Z", 27: "AA", 52: "AZ", 53: "BA", 702: "ZZ", 703: "AAA", 16384: "XFD"}
	for n, name := range cases {
		assert.Equal(t, name, ColumnName(n))
		got, err := ColumnNumber(name)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	assert.Equal(t, "", ColumnName(0))
	_, err := ColumnNumber("A1")
	assert.Error(t, err)
}

func TestCellRef_NextColNextRow(t *testing.T) {
	ref, err := ParseCellRef("Sheet1!$Z$9")
	require.NoError(t, err)
	assert.Equal(t, "Sheet1!$AA$9", ref.NextCol().String())
	assert.Equal(t, "Sheet1!$Z$10", ref.NextRow().String())
	assert.Equal(t, "Z9", ref.CellName())
	assert.Equal(t, "Sheet1!$AB$12", ref.Offset(3, 2).String())
}

func TestParseRange(t *testing.T) {
	rng, err := ParseRange("B4:C7")
	require.NoError(t, err)
	assert.Equal(t, "B4:C7", rng.String())
	assert.Equal(t, 7, rng.End.Row)

	single, err := ParseRange("D2")
	require.NoError(t, err)
	assert.Equal(t, single.Start, single.End)

	_, err = ParseRange("A1:B")
	assert.ErrorIs(t, err, ErrMalformedReference)
}

func TestIsWithin(t *testing.T) {
	rng, err := ParseRange("Sheet1!B2:D5")
	require.NoError(t, err)
	inside, _ := ParseCellRef("C3")
	corner, _ := ParseCellRef("D5")
	outside, _ := ParseCellRef("E3")
	above, _ := ParseCellRef("B1")

	assert.True(t, rng.Contains(inside), "table qualifier is ignored")
	assert.True(t, IsWithin(corner, rng.Start, rng.End))
	assert.False(t, rng.Contains(outside))
	assert.False(t, rng.Contains(above))
}
