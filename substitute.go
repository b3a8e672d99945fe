package xltpl

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// engine runs one substitution pass over one sheet.
type engine struct {
	wb   *Workbook
	sh   *sheet
	opts *Options
	res  *resolver
	data map[string]any
}

// shiftState is the geometry growth accumulated by the rows visited so far.
type shiftState struct {
	rowsInserted int // rows inserted above the next template row
	colsInserted int // widest column growth of any single row
}

// rowCtx tracks one template row while its cells are visited.
type rowCtx struct {
	row          *etree.Element
	num          int                     // current row number
	cells        []*etree.Element        // rebuilt cell list
	colsInserted int                     // columns added so far on this row
	newRows      []*etree.Element        // table rows created below, in order
	tableCells   map[*etree.Element]bool // cells that drove a table expansion
	byCol        map[int]*etree.Element  // template cells by original column
}

// tableRow returns the i-th row below the template row, creating rows lazily
// so that every table column of the template row shares them.
func (rc *rowCtx) tableRow(i int) *etree.Element {
	for len(rc.newRows) < i {
		nr := cloneElement(rc.row, false)
		nr.CreateAttr("r", strconv.Itoa(rc.num+len(rc.newRows)+1))
		rc.newRows = append(rc.newRows, nr)
	}
	return rc.newRows[i-1]
}

func (wb *Workbook) substitute(info SheetInfo, data map[string]any) error {
	sh, err := wb.loadSheet(info)
	if err != nil {
		return &SubstitutionError{Sheet: info.Name, Err: err}
	}
	if data == nil {
		data = map[string]any{}
	}
	e := &engine{wb: wb, sh: sh, opts: wb.opts, res: wb.resolver, data: data}
	state, err := e.run()
	if err != nil {
		var se *SubstitutionError
		if !errors.As(err, &se) {
			err = &SubstitutionError{Sheet: info.Name, Err: err}
		}
		return err
	}
	if err := sh.save(); err != nil {
		return &SubstitutionError{Sheet: info.Name, Err: err}
	}
	wb.removeCalcChain()
	wb.log.Debug("sheet substituted",
		slog.String("sheet", info.Name),
		slog.Int("rows_inserted", state.rowsInserted),
		slog.Int("cols_inserted", state.colsInserted))
	return nil
}

func (e *engine) run() (shiftState, error) {
	var state shiftState
	root := e.sh.root()
	sheetData := root.SelectElement("sheetData")
	if sheetData == nil {
		return state, nil
	}

	var rows []*etree.Element
	prev := 0
	for _, row := range sheetData.SelectElements("row") {
		orig := attrInt(row, "r", prev+1)
		prev = orig
		num := orig + state.rowsInserted
		row.CreateAttr("r", strconv.Itoa(num))
		rows = append(rows, row)

		next, added, err := e.visitRow(row, num, state)
		if err != nil {
			return state, err
		}
		rows = append(rows, added...)
		state = next
	}
	replaceChildren(sheetData, rows)

	if err := e.substituteTableHeaders(); err != nil {
		return state, err
	}
	e.substituteHyperlinks()
	if err := e.updateDimension(state); err != nil {
		return state, err
	}
	stripFormulaValues(sheetData)
	return state, nil
}

// visitRow substitutes every cell of a template row and returns the updated
// shift state and the table rows created below it.
func (e *engine) visitRow(row *etree.Element, num int, state shiftState) (shiftState, []*etree.Element, error) {
	rc := &rowCtx{
		row:        row,
		num:        num,
		tableCells: make(map[*etree.Element]bool),
		byCol:      make(map[int]*etree.Element),
	}
	cells := row.SelectElements("c")
	cols := make([]int, len(cells))
	prev := 0
	for i, cell := range cells {
		col := prev + 1
		if r := cell.SelectAttrValue("r", ""); r != "" {
			ref, err := ParseCellRef(r)
			if err != nil {
				return state, nil, &SubstitutionError{Sheet: e.sh.info.Name, Cell: r, Err: err}
			}
			if ref.Col > 0 {
				col = ref.Col
			}
		}
		cols[i] = col
		prev = col
		rc.byCol[col] = cell
	}

	for i, cell := range cells {
		ref := CellRef{Col: cols[i] + rc.colsInserted, Row: num}
		cell.CreateAttr("r", ref.String())
		keep, err := e.visitCell(rc, cell, ref)
		if err != nil {
			var se *SubstitutionError
			if errors.As(err, &se) {
				return state, nil, err
			}
			return state, nil, &SubstitutionError{Sheet: e.sh.info.Name, Cell: ref.String(), Err: err}
		}
		if keep {
			rc.cells = append(rc.cells, cell)
		}
	}
	replaceChildren(row, rc.cells)

	if rc.colsInserted > 0 {
		updateRowSpan(row, rc.colsInserted)
		state.colsInserted = max(state.colsInserted, rc.colsInserted)
	}
	if len(rc.newRows) == 0 {
		return state, nil, nil
	}

	if e.opts.moveImages {
		d, err := e.sh.loadDrawing(false)
		if err != nil {
			return state, nil, err
		}
		if d != nil {
			d.relocate(num, len(rc.newRows), e.opts.moveSameLineImages)
		}
	}
	for _, nr := range rc.newRows {
		if e.opts.substituteAllTableRow {
			e.copyRowCells(rc, nr)
		}
		sortCells(nr)
	}
	state.rowsInserted += len(rc.newRows)
	if err := e.pushDown(num, len(rc.newRows)); err != nil {
		return state, nil, err
	}
	return state, rc.newRows, nil
}

// copyRowCells clones the template row's non-table cells onto a new row.
func (e *engine) copyRowCells(rc *rowCtx, nr *etree.Element) {
	taken := make(map[int]bool)
	for _, c := range nr.SelectElements("c") {
		if ref, err := ParseCellRef(c.SelectAttrValue("r", "")); err == nil {
			taken[ref.Col] = true
		}
	}
	rowNum := attrInt(nr, "r", 0)
	for _, c := range rc.row.SelectElements("c") {
		if rc.tableCells[c] {
			continue
		}
		ref, err := ParseCellRef(c.SelectAttrValue("r", ""))
		if err != nil || taken[ref.Col] {
			continue
		}
		cp := cloneElement(c, true)
		cp.CreateAttr("r", CellRef{Col: ref.Col, Row: rowNum}.String())
		nr.AddChild(cp)
	}
}

// sortCells orders a row's cells by column.
func sortCells(row *etree.Element) {
	cells := row.SelectElements("c")
	col := func(c *etree.Element) int {
		ref, err := ParseCellRef(c.SelectAttrValue("r", ""))
		if err != nil {
			return 0
		}
		return ref.Col
	}
	sort.SliceStable(cells, func(i, j int) bool { return col(cells[i]) < col(cells[j]) })
	replaceChildren(row, cells)
}

// visitCell substitutes one cell. It returns false when the cell has already
// been placed in rc.cells (array expansion).
func (e *engine) visitCell(rc *rowCtx, cell *etree.Element, ref CellRef) (bool, error) {
	text, ok := e.sharedText(cell)
	if !ok {
		return true, nil
	}
	placeholders := ExtractPlaceholders(text)
	if len(placeholders) == 0 {
		return true, nil
	}
	if len(placeholders) == 1 && placeholders[0].Full {
		p := placeholders[0]
		keep, err := e.dispatch(rc, cell, ref, p)
		if err != nil {
			return false, &SubstitutionError{Sheet: e.sh.info.Name, Cell: ref.String(), Path: p.Path(), Err: err}
		}
		return keep, nil
	}
	out := replacePlaceholders(text, func(p Placeholder) (string, bool) {
		return e.res.Lookup(e.data, p.Path()).Stringify(), true
	})
	e.insertValue(cell, ValueOf(out))
	return true, nil
}

// sharedText returns the shared string of a t="s" cell.
func (e *engine) sharedText(cell *etree.Element) (string, bool) {
	if cell.SelectAttrValue("t", "") != "s" {
		return "", false
	}
	v := cell.SelectElement("v")
	if v == nil {
		return "", false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(v.Text()))
	if err != nil {
		return "", false
	}
	return e.wb.strings.Get(idx)
}

// dispatch handles a cell holding exactly one full placeholder. The branch is
// chosen by placeholder type and the kind of the resolved value.
func (e *engine) dispatch(rc *rowCtx, cell *etree.Element, ref CellRef, p Placeholder) (bool, error) {
	switch p.Type {
	case TypeImage:
		return true, e.embedImage(cell, ref, e.res.Lookup(e.data, p.Path()))
	case TypeTable:
		seq := e.res.Lookup(e.data, p.Name)
		if seq.Kind() == KindSequence {
			return e.substituteTable(rc, cell, ref, p, seq)
		}
		e.insertValue(cell, e.res.Lookup(e.data, p.Path()))
		return true, nil
	}

	val := e.res.Lookup(e.data, p.Path())
	switch {
	case val.Kind() == KindSequence:
		return e.substituteArray(rc, cell, ref, val)
	case p.SubType == TypeImage:
		return true, e.embedImage(cell, ref, val)
	default:
		e.insertValue(cell, val)
		return true, nil
	}
}

// substituteArray writes a sequence across the row starting at the cell,
// then pushes later columns right.
func (e *engine) substituteArray(rc *rowCtx, cell *etree.Element, ref CellRef, seq Value) (bool, error) {
	if seq.Len() == 0 {
		blankCell(cell)
		return true, nil
	}
	template := cloneElement(cell, true)
	cells := e.spreadRight(cell, template, ref, seq)
	rc.cells = append(rc.cells, cells...)
	added := len(cells) - 1
	if added > 0 {
		rc.colsInserted += added
		if err := e.pushRight(ref, added); err != nil {
			return false, err
		}
	}
	return false, nil
}

// spreadRight writes seq[0] into first and each later element into a clone
// of template one column further right. It returns the cells in order.
func (e *engine) spreadRight(first, template *etree.Element, start CellRef, seq Value) []*etree.Element {
	items := seq.Items()
	cells := make([]*etree.Element, 0, len(items))
	at := start
	for i, item := range items {
		c := first
		if i > 0 {
			at = at.NextCol()
			c = cloneElement(template, true)
			c.CreateAttr("r", at.String())
		}
		e.insertValue(c, item)
		cells = append(cells, c)
	}
	return cells
}

// insertValue writes a scalar into a cell, retyping it: numbers and dates
// are untagged, booleans are t="b", strings beginning with "=" become
// formulas and everything else goes through the shared string table.
func (e *engine) insertValue(cell *etree.Element, val Value) {
	switch val.Kind() {
	case KindString:
		if s := val.Str(); len(s) > 1 && s[0] == '=' {
			setFormula(cell, s[1:])
			return
		}
	case KindNumber, KindDate:
		cell.RemoveAttr("t")
		setCellText(cell, val.Stringify())
		return
	case KindBool:
		cell.CreateAttr("t", "b")
		setCellText(cell, val.Stringify())
		return
	}
	cell.CreateAttr("t", "s")
	setCellText(cell, strconv.Itoa(e.wb.strings.LookupOrInsert(val.Stringify())))
}

func setCellText(cell *etree.Element, text string) {
	v := cell.SelectElement("v")
	if v == nil {
		v = cell.CreateElement("v")
	}
	v.SetText(text)
}

func setFormula(cell *etree.Element, formula string) {
	cell.RemoveAttr("t")
	for _, old := range cell.SelectElements("f") {
		cell.RemoveChild(old)
	}
	for _, v := range cell.SelectElements("v") {
		cell.RemoveChild(v)
	}
	f := etree.NewElement("f")
	f.SetText(formula)
	cell.InsertChildAt(0, f)
}

// blankCell clears the value and type of a cell, keeping its style.
func blankCell(cell *etree.Element) {
	cell.RemoveAttr("t")
	clearChildren(cell)
}

// updateDimension grows the sheet's <dimension> by the net growth.
func (e *engine) updateDimension(state shiftState) error {
	dim := e.sh.root().SelectElement("dimension")
	if dim == nil || (state.rowsInserted == 0 && state.colsInserted == 0) {
		return nil
	}
	rng, err := ParseRange(dim.SelectAttrValue("ref", ""))
	if err != nil {
		return fmt.Errorf("dimension: %w", err)
	}
	rng.End.Row += state.rowsInserted
	rng.End.Col += state.colsInserted
	dim.CreateAttr("ref", rng.String())
	return nil
}

// stripFormulaValues drops cached results so formulas recompute on open.
func stripFormulaValues(sheetData *etree.Element) {
	for _, row := range sheetData.SelectElements("row") {
		for _, cell := range row.SelectElements("c") {
			if cell.SelectElement("f") == nil {
				continue
			}
			for _, v := range cell.SelectElements("v") {
				cell.RemoveChild(v)
			}
		}
	}
}
