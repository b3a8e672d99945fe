package xltpl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// drawing is the spreadsheetDrawing part attached to a sheet.
type drawing struct {
	path     string
	doc      *etree.Document
	relsPath string
	rels     *etree.Document

	// anchors created during the current pass; relocation skips them
	created map[*etree.Element]bool
}

func (d *drawing) root() *etree.Element { return d.doc.Root() }

func (d *drawing) save(parts *partStore) error {
	if err := parts.writeDoc(d.path, d.doc); err != nil {
		return err
	}
	if len(d.rels.Root().ChildElements()) == 0 {
		parts.remove(d.relsPath)
		return nil
	}
	return parts.writeDoc(d.relsPath, d.rels)
}

// loadDrawing returns the sheet's drawing, loading it on first use. When the
// sheet has none, a new drawing part is created only if create is set.
func (sh *sheet) loadDrawing(create bool) (*drawing, error) {
	if sh.drawing != nil {
		return sh.drawing, nil
	}
	el := sh.root().SelectElement("drawing")
	if el == nil {
		if !create {
			return nil, nil
		}
		return sh.initDrawing()
	}

	rel := findRel(sh.relsRoot(), el.SelectAttrValue("r:id", ""))
	if rel == nil {
		return nil, fmt.Errorf("drawing relationship %q not found", el.SelectAttrValue("r:id", ""))
	}
	d := &drawing{
		path:    resolveTarget(sh.info.Path, rel.SelectAttrValue("Target", "")),
		created: make(map[*etree.Element]bool),
	}
	d.relsPath = relsPathFor(d.path)
	var err error
	if d.doc, err = sh.wb.parts.readDoc(d.path); err != nil {
		return nil, err
	}
	if sh.wb.parts.has(d.relsPath) {
		if d.rels, err = sh.wb.parts.readDoc(d.relsPath); err != nil {
			return nil, err
		}
	} else {
		d.rels = newDoc("Relationships", "xmlns", nsPackageRels)
	}
	sh.drawing = d
	return d, nil
}

// initDrawing creates an empty drawing part and links it from the sheet.
func (sh *sheet) initDrawing() (*drawing, error) {
	rels := sh.ensureRels()
	relID, err := nextRelID(rels)
	if err != nil {
		return nil, err
	}
	n := sh.wb.parts.maxFileID(drawingPartRe) + 1
	name := sh.wb.prefix + "/drawings/drawing" + strconv.Itoa(n) + ".xml"

	rel := rels.CreateElement("Relationship")
	rel.CreateAttr("Id", relID)
	rel.CreateAttr("Type", nsOfficeRels+"/drawing")
	rel.CreateAttr("Target", relativeTarget(sh.info.Path, name))

	root := sh.root()
	if root.SelectAttr("xmlns:r") == nil {
		root.CreateAttr("xmlns:r", nsOfficeRels)
	}
	el := etree.NewElement("drawing")
	el.CreateAttr("r:id", relID)
	// CT_Worksheet fixes the order of the trailing elements
	insertBefore(root, el, "legacyDrawing", "legacyDrawingHF", "drawingHF", "picture",
		"oleObjects", "controls", "webPublishItems", "tableParts", "extLst")

	d := &drawing{
		path:     name,
		doc:      newDoc("xdr:wsDr", "xmlns:xdr", nsSpreadsheetDrawing, "xmlns:a", nsDrawingML),
		relsPath: relsPathFor(name),
		rels:     newDoc("Relationships", "xmlns", nsPackageRels),
		created:  make(map[*etree.Element]bool),
	}
	// reserve the part name so later drawings number past it
	sh.wb.parts.set(name, nil)
	sh.wb.addOverride("/"+name, ctDrawing)
	sh.drawing = d
	return d, nil
}

// relocate shifts pre-existing anchors that start below fromRow (1-based)
// down by n rows. With sameLine, anchors starting on fromRow move as well.
func (d *drawing) relocate(fromRow, n int, sameLine bool) {
	for _, anchor := range d.root().ChildElements() {
		if d.created[anchor] {
			continue
		}
		switch anchor.Tag {
		case "twoCellAnchor", "oneCellAnchor":
		default:
			continue
		}
		from := childByLocal(anchor, "from")
		if from == nil {
			continue
		}
		rowEl := childByLocal(from, "row")
		if rowEl == nil {
			continue
		}
		row, err := strconv.Atoi(strings.TrimSpace(rowEl.Text()))
		if err != nil {
			continue
		}
		if row+1 < fromRow || (row+1 == fromRow && !sameLine) {
			continue
		}
		rowEl.SetText(strconv.Itoa(row + n))
		if to := childByLocal(anchor, "to"); to != nil {
			if toRow := childByLocal(to, "row"); toRow != nil {
				if v, err := strconv.Atoi(strings.TrimSpace(toRow.Text())); err == nil {
					toRow.SetText(strconv.Itoa(v + n))
				}
			}
		}
	}
}

// maxShapeID returns the largest cNvPr id in the drawing.
func (d *drawing) maxShapeID() int {
	maxID := 0
	for _, el := range d.root().FindElements("//cNvPr") {
		maxID = max(maxID, attrInt(el, "id", 0))
	}
	return maxID
}

// childByLocal returns the first child with the given local name.
func childByLocal(parent *etree.Element, name string) *etree.Element {
	for _, c := range parent.ChildElements() {
		if c.Tag == name {
			return c
		}
	}
	return nil
}
