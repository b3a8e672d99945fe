package xltpl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Shift predicates use "strictly greater than" so the cell or row that
// triggered an insertion is never shifted itself.

// pushRight moves merges, hyperlink anchors and defined names that start on
// at's row, right of at, by numCols columns.
func (e *engine) pushRight(at CellRef, numCols int) error {
	if numCols <= 0 {
		return nil
	}
	for _, mc := range e.sh.mergeCells() {
		rng, err := ParseRange(mc.SelectAttrValue("ref", ""))
		if err != nil {
			return fmt.Errorf("merge cell: %w", err)
		}
		if rng.Start.Row == at.Row && rng.Start.Col > at.Col {
			mc.CreateAttr("ref", shiftCols(rng, numCols).String())
		}
	}
	if err := e.shiftHyperlinks(func(rng Range) (Range, bool) {
		if rng.Start.Row == at.Row && rng.Start.Col > at.Col {
			return shiftCols(rng, numCols), true
		}
		return rng, false
	}); err != nil {
		return err
	}
	e.shiftDefinedNames(func(rng Range, isRange bool) (Range, bool) {
		if rng.Start.Row == at.Row && rng.Start.Col > 0 && rng.Start.Col > at.Col {
			return shiftCols(rng, numCols), true
		}
		return rng, false
	})
	return nil
}

// pushDown moves merges, tables, hyperlink anchors and defined names that
// start below atRow down by numRows. Single-row merges sitting on atRow are
// repeated on each inserted row.
func (e *engine) pushDown(atRow, numRows int) error {
	if numRows <= 0 {
		return nil
	}
	if container := e.sh.root().SelectElement("mergeCells"); container != nil {
		for _, mc := range container.SelectElements("mergeCell") {
			rng, err := ParseRange(mc.SelectAttrValue("ref", ""))
			if err != nil {
				return fmt.Errorf("merge cell: %w", err)
			}
			switch {
			case rng.Start.Row > atRow:
				mc.CreateAttr("ref", shiftRows(rng, numRows).String())
			case rng.Start.Row == atRow && rng.End.Row == atRow:
				for i := 1; i <= numRows; i++ {
					dup := cloneElement(mc, false)
					dup.CreateAttr("ref", shiftRows(rng, i).String())
					container.AddChild(dup)
				}
			}
		}
		container.CreateAttr("count", strconv.Itoa(len(container.SelectElements("mergeCell"))))
	}

	for _, t := range e.sh.tables {
		rng, err := t.ref()
		if err != nil {
			return fmt.Errorf("table %s: %w", t.path, err)
		}
		if rng.Start.Row <= atRow {
			continue
		}
		t.setRef(shiftRows(rng, numRows))
		if af := t.autoFilter(); af != nil {
			afRng, err := ParseRange(af.SelectAttrValue("ref", ""))
			if err != nil {
				return fmt.Errorf("table %s autofilter: %w", t.path, err)
			}
			af.CreateAttr("ref", shiftRows(afRng, numRows).String())
		}
	}

	if err := e.shiftHyperlinks(func(rng Range) (Range, bool) {
		if rng.Start.Row > atRow {
			return shiftRows(rng, numRows), true
		}
		return rng, false
	}); err != nil {
		return err
	}

	pageBreak := e.opts.pushDownPageBreak
	e.shiftDefinedNames(func(rng Range, isRange bool) (Range, bool) {
		switch {
		case rng.Start.Row > atRow:
			return shiftRows(rng, numRows), true
		case isRange && pageBreak && rng.End.Row >= atRow:
			rng.End.Row += numRows
			return rng, true
		}
		return rng, false
	})
	return nil
}

func shiftCols(rng Range, n int) Range {
	rng.Start = rng.Start.Offset(0, n)
	rng.End = rng.End.Offset(0, n)
	return rng
}

func shiftRows(rng Range, n int) Range {
	rng.Start = rng.Start.Offset(n, 0)
	rng.End = rng.End.Offset(n, 0)
	return rng
}

// shiftHyperlinks applies fn to every <hyperlink ref> anchor of the sheet.
func (e *engine) shiftHyperlinks(fn func(Range) (Range, bool)) error {
	links := e.sh.root().SelectElement("hyperlinks")
	if links == nil {
		return nil
	}
	for _, h := range links.SelectElements("hyperlink") {
		ref := h.SelectAttrValue("ref", "")
		rng, err := ParseRange(ref)
		if err != nil {
			return fmt.Errorf("hyperlink: %w", err)
		}
		if moved, ok := fn(rng); ok {
			h.CreateAttr("ref", formatRef(moved, strings.Contains(ref, ":")))
		}
	}
	return nil
}

// shiftDefinedNames applies fn to each defined name that is a plain cell or
// range reference on the current sheet. Other names (formulas, constants,
// unions, other sheets) are left untouched.
func (e *engine) shiftDefinedNames(fn func(rng Range, isRange bool) (Range, bool)) {
	names := e.sh.wb.workbook.Root().SelectElement("definedNames")
	if names == nil {
		return
	}
	for _, dn := range names.SelectElements("definedName") {
		rng, isRange, ok := e.nameRange(dn)
		if !ok {
			continue
		}
		if moved, ok := fn(rng, isRange); ok {
			dn.SetText(formatRef(moved, isRange))
		}
	}
}

// nameRange parses a defined name targeting the current sheet.
func (e *engine) nameRange(dn *etree.Element) (Range, bool, bool) {
	text := strings.TrimSpace(dn.Text())
	if text == "" || strings.ContainsAny(text, ",()") {
		return Range{}, false, false
	}
	if sheet := nameSheet(text); sheet != "" && sheet != e.sh.info.Name {
		return Range{}, false, false
	}
	if !strings.Contains(text, "!") && attrInt(dn, "localSheetId", -1) != e.sh.wb.sheetPosition(e.sh.info.Name) {
		return Range{}, false, false
	}
	isRange := strings.Contains(text, ":")
	rng, err := ParseRange(text)
	if err != nil {
		return Range{}, false, false
	}
	return rng, isRange, true
}

func formatRef(rng Range, isRange bool) string {
	if isRange {
		return rng.String()
	}
	return rng.Start.String()
}
