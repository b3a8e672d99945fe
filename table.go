package xltpl

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// substituteTable expands a ${table:name.key} cell down the sheet, one row
// per element of seq. Rows below the template row are shared by every table
// placeholder of the row, so sibling columns grow together.
func (e *engine) substituteTable(rc *rowCtx, cell *etree.Element, ref CellRef, p Placeholder, seq Value) (bool, error) {
	rc.tableCells[cell] = true
	if seq.Len() == 0 {
		blankCell(cell)
		return true, nil
	}

	template := cloneElement(cell, true)
	parents := e.sh.tablesContaining(ref)
	merge, merged := e.sh.mergeStartingAt(ref)
	colsBefore := rc.colsInserted
	image := p.SubType == TypeImage

	items := seq.Items()
	keep := true
	for i, item := range items {
		val := e.res.Field(item, p.Key)
		if i == 0 {
			switch {
			case val.Kind() == KindSequence && val.Len() > 0:
				cells := e.spreadRight(cell, template, ref, val)
				rc.cells = append(rc.cells, cells...)
				if added := len(cells) - 1; added > 0 {
					rc.colsInserted += added
					if err := e.pushRight(ref, added); err != nil {
						return false, err
					}
				}
				keep = false
			case val.Kind() == KindSequence:
				blankCell(cell)
			case image:
				if !val.IsEmpty() {
					if err := e.embedImage(cell, ref, val); err != nil {
						return false, err
					}
				} else {
					blankCell(cell)
				}
			default:
				e.insertValue(cell, val)
			}
			continue
		}

		row := rc.tableRow(i)
		at := CellRef{Col: ref.Col, Row: rc.num + i}
		if err := e.placeTableValue(row, template, at, val, image); err != nil {
			return false, err
		}
		if merged && val.Kind() != KindSequence {
			replicateMerge(rc, row, merge, colsBefore, at.Row)
		}
		if err := growTables(parents, at); err != nil {
			return false, err
		}
	}
	return keep, nil
}

// placeTableValue writes one element of a table column onto a new row.
func (e *engine) placeTableValue(row, template *etree.Element, at CellRef, val Value, image bool) error {
	switch {
	case val.Kind() == KindSequence:
		if val.Len() == 0 {
			return nil
		}
		first := cloneElement(template, true)
		first.CreateAttr("r", at.String())
		cells := e.spreadRight(first, template, at, val)
		for _, c := range cells {
			row.AddChild(c)
		}
		updateRowSpan(row, len(cells)-1)
	case image:
		c := cloneElement(template, true)
		c.CreateAttr("r", at.String())
		if val.IsEmpty() {
			blankCell(c)
		} else if err := e.embedImage(c, at, val); err != nil {
			return err
		}
		row.AddChild(c)
	default:
		c := cloneElement(template, true)
		c.CreateAttr("r", at.String())
		e.insertValue(c, val)
		row.AddChild(c)
	}
	return nil
}

// replicateMerge copies the cells covered by a single-row merge onto a new
// row so their borders and styles follow the merge duplicated by pushDown.
func replicateMerge(rc *rowCtx, row *etree.Element, merge Range, colsBefore, rowNum int) {
	for col := merge.Start.Col + 1; col <= merge.End.Col; col++ {
		src, ok := rc.byCol[col-colsBefore]
		if !ok {
			continue
		}
		c := cloneElement(src, true)
		c.CreateAttr("r", CellRef{Col: col, Row: rowNum}.String())
		blankCell(c)
		row.AddChild(c)
	}
}

// growTables extends each enclosing table by one row when at falls below its
// data area, keeping the autofilter aligned with the data rows.
func growTables(tables []*namedTable, at CellRef) error {
	for _, t := range tables {
		rng, err := t.ref()
		if err != nil {
			return fmt.Errorf("table %s: %w", t.path, err)
		}
		totals := t.totalsRows()
		if at.Row <= rng.End.Row-totals {
			continue
		}
		rng.End.Row++
		t.setRef(rng)
		end := rng.End
		end.Row -= totals
		if err := t.setAutoFilterEnd(end); err != nil {
			return err
		}
	}
	return nil
}

// substituteTableHeaders resolves placeholders inside table column names.
// A full placeholder bound to a non-empty sequence becomes one column per
// element and widens the table.
func (e *engine) substituteTableHeaders() error {
	for _, t := range e.sh.tables {
		cols := t.root().SelectElement("tableColumns")
		if cols == nil {
			continue
		}
		nextID := 0
		for _, c := range cols.SelectElements("tableColumn") {
			nextID = max(nextID, attrInt(c, "id", 0))
		}
		added := 0
		for _, c := range cols.SelectElements("tableColumn") {
			name := c.SelectAttrValue("name", "")
			placeholders := ExtractPlaceholders(name)
			if len(placeholders) == 0 {
				continue
			}
			if len(placeholders) == 1 && placeholders[0].Full && placeholders[0].Type == TypeNormal {
				val := e.res.Lookup(e.data, placeholders[0].Path())
				if val.Kind() == KindSequence && val.Len() > 0 {
					items := val.Items()
					c.CreateAttr("name", items[0].Stringify())
					at := c.Index()
					for _, item := range items[1:] {
						nextID++
						nc := cloneElement(c, false)
						nc.CreateAttr("id", strconv.Itoa(nextID))
						nc.CreateAttr("name", item.Stringify())
						at++
						cols.InsertChildAt(at, nc)
					}
					added += len(items) - 1
					continue
				}
			}
			c.CreateAttr("name", replacePlaceholders(name, func(p Placeholder) (string, bool) {
				val := e.res.Lookup(e.data, p.Path())
				return val.Stringify(), val.Kind() != KindMissing
			}))
		}
		if added == 0 {
			continue
		}
		cols.CreateAttr("count", strconv.Itoa(len(cols.SelectElements("tableColumn"))))
		rng, err := t.ref()
		if err != nil {
			return fmt.Errorf("table %s: %w", t.path, err)
		}
		rng.End.Col += added
		t.setRef(rng)
		if af := t.autoFilter(); af != nil {
			afRng, err := ParseRange(af.SelectAttrValue("ref", ""))
			if err != nil {
				return fmt.Errorf("table %s autofilter: %w", t.path, err)
			}
			afRng.End.Col += added
			af.CreateAttr("ref", afRng.String())
		}
	}
	return nil
}
