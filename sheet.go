package xltpl

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// sheet is one worksheet loaded for a substitution pass, together with the
// parts that hang off it.
type sheet struct {
	wb   *Workbook
	info SheetInfo
	doc  *etree.Document

	relsPath string
	rels     *etree.Document // nil when the sheet has no relationships part

	tables  []*namedTable
	drawing *drawing
}

// namedTable is a table part (xl/tables/tableN.xml) referenced by the sheet.
type namedTable struct {
	path string
	doc  *etree.Document
}

func (wb *Workbook) loadSheet(info SheetInfo) (*sheet, error) {
	doc, err := wb.parts.readDoc(info.Path)
	if err != nil {
		return nil, err
	}
	sh := &sheet{wb: wb, info: info, doc: doc, relsPath: relsPathFor(info.Path)}
	if wb.parts.has(sh.relsPath) {
		if sh.rels, err = wb.parts.readDoc(sh.relsPath); err != nil {
			return nil, err
		}
	}
	if err := sh.loadTables(); err != nil {
		return nil, err
	}
	return sh, nil
}

func (sh *sheet) root() *etree.Element {
	return sh.doc.Root()
}

func (sh *sheet) relsRoot() *etree.Element {
	if sh.rels == nil {
		return nil
	}
	return sh.rels.Root()
}

// ensureRels returns the relationships root, creating the part when missing.
func (sh *sheet) ensureRels() *etree.Element {
	if sh.rels == nil {
		sh.rels = newDoc("Relationships", "xmlns", nsPackageRels)
	}
	return sh.rels.Root()
}

func (sh *sheet) loadTables() error {
	parts := sh.root().SelectElement("tableParts")
	if parts == nil {
		return nil
	}
	for _, tp := range parts.SelectElements("tablePart") {
		id := tp.SelectAttrValue("r:id", "")
		rel := findRel(sh.relsRoot(), id)
		if rel == nil {
			return fmt.Errorf("table relationship %q not found", id)
		}
		name := resolveTarget(sh.info.Path, rel.SelectAttrValue("Target", ""))
		doc, err := sh.wb.parts.readDoc(name)
		if err != nil {
			return err
		}
		sh.tables = append(sh.tables, &namedTable{path: name, doc: doc})
	}
	return nil
}

// save writes the sheet and every part it touched back into the store.
func (sh *sheet) save() error {
	parts := sh.wb.parts
	if err := parts.writeDoc(sh.info.Path, sh.doc); err != nil {
		return err
	}
	if sh.rels != nil && len(sh.rels.Root().ChildElements()) > 0 {
		if err := parts.writeDoc(sh.relsPath, sh.rels); err != nil {
			return err
		}
	}
	for _, t := range sh.tables {
		if err := parts.writeDoc(t.path, t.doc); err != nil {
			return err
		}
	}
	if sh.drawing != nil {
		if err := sh.drawing.save(parts); err != nil {
			return err
		}
	}
	return nil
}

// mergeCells returns the <mergeCell> elements of the sheet.
func (sh *sheet) mergeCells() []*etree.Element {
	mc := sh.root().SelectElement("mergeCells")
	if mc == nil {
		return nil
	}
	return mc.SelectElements("mergeCell")
}

// mergeStartingAt returns the merge whose top-left cell is ref.
func (sh *sheet) mergeStartingAt(ref CellRef) (Range, bool) {
	for _, mc := range sh.mergeCells() {
		rng, err := ParseRange(mc.SelectAttrValue("ref", ""))
		if err == nil && sameCell(rng.Start, ref) {
			return rng, true
		}
	}
	return Range{}, false
}

// mergeContaining returns the merge covering ref.
func (sh *sheet) mergeContaining(ref CellRef) (Range, bool) {
	for _, mc := range sh.mergeCells() {
		rng, err := ParseRange(mc.SelectAttrValue("ref", ""))
		if err == nil && rng.Contains(ref) {
			return rng, true
		}
	}
	return Range{}, false
}

// tablesContaining returns the named tables whose range covers ref.
func (sh *sheet) tablesContaining(ref CellRef) []*namedTable {
	var out []*namedTable
	for _, t := range sh.tables {
		rng, err := t.ref()
		if err == nil && rng.Contains(ref) {
			out = append(out, t)
		}
	}
	return out
}

// columnWidth returns the width of a 1-based column in character units.
func (sh *sheet) columnWidth(col int) float64 {
	width := 11.42578125
	if pr := sh.root().SelectElement("sheetFormatPr"); pr != nil {
		width = attrFloat(pr, "defaultColWidth", width)
	}
	if cols := sh.root().SelectElement("cols"); cols != nil {
		for _, c := range cols.SelectElements("col") {
			if col >= attrInt(c, "min", 0) && col <= attrInt(c, "max", 0) && c.SelectAttr("width") != nil {
				width = attrFloat(c, "width", width)
			}
		}
	}
	return width
}

// rowHeight returns the height of a 1-based row in points.
func (sh *sheet) rowHeight(row int) float64 {
	height := 15.0
	if pr := sh.root().SelectElement("sheetFormatPr"); pr != nil {
		height = attrFloat(pr, "defaultRowHeight", height)
	}
	if data := sh.root().SelectElement("sheetData"); data != nil {
		for _, r := range data.SelectElements("row") {
			if attrInt(r, "r", 0) == row && r.SelectAttr("ht") != nil {
				height = attrFloat(r, "ht", height)
			}
		}
	}
	return height
}

func (t *namedTable) root() *etree.Element {
	return t.doc.Root()
}

func (t *namedTable) ref() (Range, error) {
	return ParseRange(t.root().SelectAttrValue("ref", ""))
}

func (t *namedTable) setRef(rng Range) {
	t.root().CreateAttr("ref", rng.String())
}

// totalsRows is the number of totals rows at the bottom of the range.
func (t *namedTable) totalsRows() int {
	return attrInt(t.root(), "totalsRowCount", 0)
}

func (t *namedTable) autoFilter() *etree.Element {
	return t.root().SelectElement("autoFilter")
}

// setAutoFilterEnd moves the autofilter's bottom-right corner.
func (t *namedTable) setAutoFilterEnd(end CellRef) error {
	af := t.autoFilter()
	if af == nil {
		return nil
	}
	rng, err := ParseRange(af.SelectAttrValue("ref", ""))
	if err != nil {
		return fmt.Errorf("table %s autofilter: %w", t.path, err)
	}
	rng.End.Row = end.Row
	rng.End.Col = end.Col
	af.CreateAttr("ref", rng.String())
	return nil
}

// updateRowSpan widens a row's spans="min:max" hint by n columns.
func updateRowSpan(row *etree.Element, n int) {
	spans := row.SelectAttr("spans")
	if n == 0 || spans == nil {
		return
	}
	lo, hi, ok := cutInts(spans.Value)
	if !ok {
		return
	}
	row.CreateAttr("spans", strconv.Itoa(lo)+":"+strconv.Itoa(hi+n))
}

func cutInts(s string) (int, int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		lo, err1 := strconv.Atoi(s[:i])
		hi, err2 := strconv.Atoi(s[i+1:])
		return lo, hi, err1 == nil && err2 == nil
	}
	return 0, 0, false
}
