package xltpl

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildTemplate creates a workbook with excelize, lets build fill in
// Sheet1, and returns the serialized package.
func buildTemplate(t *testing.T, build func(f *excelize.File)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	build(f)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// openTemplate builds a template and opens it for substitution.
func openTemplate(t *testing.T, build func(f *excelize.File), opts ...Option) *Workbook {
	t.Helper()
	wb, err := Open(bytes.NewReader(buildTemplate(t, build)), opts...)
	require.NoError(t, err)
	return wb
}

// reopen serializes wb and opens the output with excelize for assertions.
func reopen(t *testing.T, wb *Workbook) *excelize.File {
	t.Helper()
	out, err := wb.Bytes()
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// partDoc parses a part of the in-memory package.
func partDoc(t *testing.T, wb *Workbook, name string) *etree.Document {
	t.Helper()
	doc, err := wb.parts.readDoc(name)
	require.NoError(t, err)
	return doc
}

// sheetCell returns the <c> element at ref in the first worksheet part.
func sheetCell(t *testing.T, wb *Workbook, ref string) *etree.Element {
	t.Helper()
	doc := partDoc(t, wb, "xl/worksheets/sheet1.xml")
	for _, c := range doc.FindElements("//sheetData/row/c") {
		if c.SelectAttrValue("r", "") == ref {
			return c
		}
	}
	return nil
}

func cellValue(t *testing.T, f *excelize.File, ref string) string {
	t.Helper()
	v, err := f.GetCellValue("Sheet1", ref)
	require.NoError(t, err)
	return v
}

// pngBytes encodes a solid w×h PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
