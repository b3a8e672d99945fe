package xltpl

import (
	"fmt"
	"strconv"
	"strings"
)

// Placement locates a placeholder inside a template.
type Placement struct {
	Sheet    string
	Cell     string // empty for table headers and hyperlinks
	Location string // "cell", "table header" or "hyperlink"
	Text     string // the full text the placeholder was found in
	Placeholder
}

// Describe opens a template and returns a human-readable tree of its sheets
// and the placeholders found in cells, table headers and hyperlinks.
// Useful for debugging templates during development.
func Describe(templatePath string, opts ...Option) (string, error) {
	wb, err := OpenFile(templatePath, opts...)
	if err != nil {
		return "", err
	}
	placements, err := wb.Placeholders()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Template: ")
	b.WriteString(templatePath)
	b.WriteByte('\n')
	for _, info := range wb.Sheets() {
		fmt.Fprintf(&b, "Sheet %q (id %d, %s)\n", info.Name, info.ID, info.Path)
		for _, p := range placements {
			if p.Sheet != info.Name {
				continue
			}
			where := p.Cell
			if where == "" {
				where = p.Location
			}
			fmt.Fprintf(&b, "  %s: %s%s\n", where, p.Placeholder.Placeholder, describeAttrs(p.Placeholder))
		}
	}
	return b.String(), nil
}

// describeAttrs renders the parsed parts of a placeholder for display.
func describeAttrs(p Placeholder) string {
	parts := []string{"type=" + p.Type, fmt.Sprintf("name=%q", p.Name)}
	if p.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%q", p.Key))
	}
	if p.SubType != "" {
		parts = append(parts, "subtype="+p.SubType)
	}
	if p.Full {
		parts = append(parts, "full")
	}
	return " " + strings.Join(parts, " ")
}

// Placeholders lists every placeholder of every sheet in workbook order.
// The workbook is not modified.
func (wb *Workbook) Placeholders() ([]Placement, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	var out []Placement
	for _, info := range wb.sheets {
		sh, err := wb.loadSheet(info)
		if err != nil {
			return nil, &SubstitutionError{Sheet: info.Name, Err: err}
		}
		out = append(out, sh.placements()...)
	}
	return out, nil
}

func (sh *sheet) placements() []Placement {
	var out []Placement
	sh.scanTexts(func(cell, location, text string) {
		for _, p := range ExtractPlaceholders(text) {
			out = append(out, Placement{Sheet: sh.info.Name, Cell: cell, Location: location, Text: text, Placeholder: p})
		}
	})
	return out
}

// scanTexts calls add for every shared-string cell, table column name and
// decoded hyperlink target of the sheet.
func (sh *sheet) scanTexts(add func(cell, location, text string)) {
	if data := sh.root().SelectElement("sheetData"); data != nil {
		for _, row := range data.SelectElements("row") {
			for _, c := range row.SelectElements("c") {
				if c.SelectAttrValue("t", "") != "s" {
					continue
				}
				v := c.SelectElement("v")
				if v == nil {
					continue
				}
				idx, err := strconv.Atoi(strings.TrimSpace(v.Text()))
				if err != nil {
					continue
				}
				if text, ok := sh.wb.strings.Get(idx); ok {
					add(c.SelectAttrValue("r", ""), "cell", text)
				}
			}
		}
	}
	for _, t := range sh.tables {
		if cols := t.root().SelectElement("tableColumns"); cols != nil {
			for _, col := range cols.SelectElements("tableColumn") {
				add("", "table header", col.SelectAttrValue("name", ""))
			}
		}
	}
	if rels := sh.relsRoot(); rels != nil {
		for _, rel := range rels.SelectElements("Relationship") {
			if relKind(rel) != "hyperlink" {
				continue
			}
			target := rel.SelectAttrValue("Target", "")
			for range 2 {
				d, err := decodeURI(target)
				if err != nil {
					break
				}
				target = d
			}
			add("", "hyperlink", target)
		}
	}
}
