package xltpl

import (
	"fmt"
	"strconv"
	"strings"
)

// CellRef represents a single cell reference such as "B4", "$C$10" or "Data!$A2".
// Col and Row are 1-based. Col is 0 when the reference has no column part
// (row references like "$5").
type CellRef struct {
	Table       string // sheet qualifier as written, quotes included (empty = current sheet)
	Col         int
	ColAbsolute bool
	Row         int
	RowAbsolute bool
}

// ParseCellRef parses a reference like "A1", "Sheet1!B5" or "$A$1".
// A reference without row digits is rejected with ErrMalformedReference.
func ParseCellRef(s string) (CellRef, error) {
	var ref CellRef
	cellPart := strings.TrimSpace(s)
	if idx := strings.LastIndex(cellPart, "!"); idx >= 0 {
		ref.Table = cellPart[:idx]
		cellPart = cellPart[idx+1:]
	}

	i := 0
	if i < len(cellPart) && cellPart[i] == '$' {
		ref.ColAbsolute = true
		i++
	}
	start := i
	for i < len(cellPart) && isAlpha(cellPart[i]) {
		i++
	}
	if i > start {
		col, err := ColumnNumber(cellPart[start:i])
		if err != nil {
			return CellRef{}, fmt.Errorf("%w: %q", ErrMalformedReference, s)
		}
		ref.Col = col
	} else if ref.ColAbsolute {
		// "$5" is an absolute row, not an absolute column
		ref.ColAbsolute = false
		i--
	}
	if i < len(cellPart) && cellPart[i] == '$' {
		ref.RowAbsolute = true
		i++
	}
	digits := cellPart[i:]
	if digits == "" {
		return CellRef{}, fmt.Errorf("%w: %q has no row", ErrMalformedReference, s)
	}
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return CellRef{}, fmt.Errorf("%w: %q", ErrMalformedReference, s)
	}
	ref.Row = row
	return ref, nil
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// String formats the reference as "[table!][$]COL[$]ROW".
func (c CellRef) String() string {
	var b strings.Builder
	if c.Table != "" {
		b.WriteString(c.Table)
		b.WriteByte('!')
	}
	if c.ColAbsolute {
		b.WriteByte('$')
	}
	if c.Col > 0 {
		b.WriteString(ColumnName(c.Col))
	}
	if c.RowAbsolute {
		b.WriteByte('$')
	}
	b.WriteString(strconv.Itoa(c.Row))
	return b.String()
}

// CellName returns the reference without sheet qualifier and "$" markers, e.g. "C7".
func (c CellRef) CellName() string {
	return ColumnName(c.Col) + strconv.Itoa(c.Row)
}

// NextCol returns the reference one column to the right.
func (c CellRef) NextCol() CellRef {
	c.Col++
	return c
}

// NextRow returns the reference one row down.
func (c CellRef) NextRow() CellRef {
	c.Row++
	return c
}

// Offset returns the reference moved by rows and cols.
func (c CellRef) Offset(rows, cols int) CellRef {
	c.Row += rows
	if c.Col > 0 {
		c.Col += cols
	}
	return c
}

// ColumnName converts a 1-based column number to letters.
// 1→"A", 26→"Z", 27→"AA", 703→"AAA"
func ColumnName(col int) string {
	if col < 1 {
		return ""
	}
	var buf []byte
	for col > 0 {
		col--
		buf = append(buf, byte('A'+col%26))
		col /= 26
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// ColumnNumber converts column letters to a 1-based number.
// "A"→1, "Z"→26, "AA"→27
func ColumnNumber(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	col := 0
	for _, ch := range strings.ToUpper(name) {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("invalid column name: %q", name)
		}
		col = col*26 + int(ch-'A') + 1
	}
	return col, nil
}

// Range is a rectangular area between two references, e.g. "B4:C7".
type Range struct {
	Start CellRef
	End   CellRef
}

// ParseRange parses "START:END". A single reference yields a one-cell range.
func ParseRange(s string) (Range, error) {
	startPart, endPart, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		endPart = startPart
	}
	start, err := ParseCellRef(startPart)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	end, err := ParseCellRef(endPart)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return Range{Start: start, End: end}, nil
}

// String formats the range as "START:END".
func (r Range) String() string {
	return r.Start.String() + ":" + r.End.String()
}

// Contains reports whether ref lies inside the range, ignoring sheet qualifiers.
func (r Range) Contains(ref CellRef) bool {
	return IsWithin(ref, r.Start, r.End)
}

// IsWithin reports whether ref's row and column fall inside [start, end] inclusive.
func IsWithin(ref, start, end CellRef) bool {
	return start.Row <= ref.Row && ref.Row <= end.Row &&
		start.Col <= ref.Col && ref.Col <= end.Col
}

// sameCell compares two references by position only.
func sameCell(a, b CellRef) bool {
	return a.Row == b.Row && a.Col == b.Col
}
