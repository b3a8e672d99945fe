package xltpl

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// sharedString is one <si> entry. elem holds the template's original entry
// so untouched rich text survives; it is dropped once the text is replaced.
type sharedString struct {
	text string
	elem *etree.Element
}

// SharedStrings is the workbook-wide deduplicated string table.
// Cells of type "s" hold an index into it.
type SharedStrings struct {
	items  []sharedString
	lookup map[string]int
}

// NewSharedStrings returns an empty table.
func NewSharedStrings() *SharedStrings {
	return &SharedStrings{lookup: make(map[string]int)}
}

// loadSharedStrings reads an <sst> part. Text of an entry is the
// concatenation of its t and r/t children.
func loadSharedStrings(root *etree.Element) *SharedStrings {
	ss := NewSharedStrings()
	for _, si := range root.SelectElements("si") {
		var b strings.Builder
		for _, t := range si.SelectElements("t") {
			b.WriteString(t.Text())
		}
		for _, r := range si.SelectElements("r") {
			for _, t := range r.SelectElements("t") {
				b.WriteString(t.Text())
			}
		}
		ss.items = append(ss.items, sharedString{text: b.String(), elem: si})
		if _, dup := ss.lookup[b.String()]; !dup {
			ss.lookup[b.String()] = len(ss.items) - 1
		}
	}
	return ss
}

// Len returns the number of entries.
func (ss *SharedStrings) Len() int {
	return len(ss.items)
}

// Get returns the text at index i.
func (ss *SharedStrings) Get(i int) (string, bool) {
	if i < 0 || i >= len(ss.items) {
		return "", false
	}
	return ss.items[i].text, true
}

// LookupOrInsert returns the index of s, appending it when absent.
func (ss *SharedStrings) LookupOrInsert(s string) int {
	if idx, ok := ss.lookup[s]; ok {
		return idx
	}
	return ss.add(s)
}

// Replace overwrites the slot holding oldText with newText and returns its
// index. Every cell pointing at that index sees the new text. When oldText
// is absent, newText is appended.
func (ss *SharedStrings) Replace(oldText, newText string) int {
	idx, ok := ss.lookup[oldText]
	if !ok {
		return ss.add(newText)
	}
	ss.items[idx] = sharedString{text: newText}
	delete(ss.lookup, oldText)
	ss.lookup[newText] = idx
	return idx
}

func (ss *SharedStrings) add(s string) int {
	ss.items = append(ss.items, sharedString{text: s})
	idx := len(ss.items) - 1
	ss.lookup[s] = idx
	return idx
}

// writeTo rebuilds the children of an <sst> root.
func (ss *SharedStrings) writeTo(root *etree.Element) {
	children := make([]*etree.Element, 0, len(ss.items))
	for _, item := range ss.items {
		if item.elem != nil {
			children = append(children, item.elem)
			continue
		}
		si := etree.NewElement("si")
		t := si.CreateElement("t")
		if item.text != strings.TrimSpace(item.text) {
			t.CreateAttr("xml:space", "preserve")
		}
		t.SetText(item.text)
		children = append(children, si)
	}
	replaceChildren(root, children)
	n := strconv.Itoa(len(ss.items))
	root.CreateAttr("count", n)
	root.CreateAttr("uniqueCount", n)
}
