// Package xltpl fills xlsx templates by replacing ${...} placeholders in
// cells, table headers and hyperlinks with caller data. Sequences grow the
// sheet: rows and columns are inserted and merges, tables, defined names and
// drawing anchors below or right of them are shifted to stay consistent.
package xltpl

import "io"

// Fill substitutes every sheet of the template at templatePath and writes
// the result to outputPath.
func Fill(templatePath, outputPath string, data map[string]any, opts ...Option) error {
	wb, err := OpenFile(templatePath, opts...)
	if err != nil {
		return err
	}
	if err := wb.SubstituteAll(data); err != nil {
		return err
	}
	return wb.SaveAs(outputPath)
}

// FillBytes substitutes every sheet of the template and returns the output.
func FillBytes(templatePath string, data map[string]any, opts ...Option) ([]byte, error) {
	wb, err := OpenFile(templatePath, opts...)
	if err != nil {
		return nil, err
	}
	if err := wb.SubstituteAll(data); err != nil {
		return nil, err
	}
	return wb.Bytes()
}

// FillReader reads a template from r, substitutes every sheet and writes the
// result to w.
func FillReader(r io.Reader, w io.Writer, data map[string]any, opts ...Option) error {
	wb, err := Open(r, opts...)
	if err != nil {
		return err
	}
	if err := wb.SubstituteAll(data); err != nil {
		return err
	}
	return wb.Write(w)
}
