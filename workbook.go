package xltpl

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/xuri/excelize/v2"
)

const (
	contentTypesPath = "[Content_Types].xml"
	rootRelsPath     = "_rels/.rels"

	nsPackageRels        = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsOfficeRels         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsSpreadsheetML      = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsSpreadsheetDrawing = "http://schemas.openxmlformats.org/drawingml/2006/spreadsheetDrawing"
	nsDrawingML          = "http://schemas.openxmlformats.org/drawingml/2006/main"

	ctWorksheet     = "application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"
	ctSharedStrings = "application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"
	ctDrawing       = "application/vnd.openxmlformats-officedocument.drawing+xml"

	// unzipLimit keeps every part in memory when reading through excelize.
	unzipLimit = 16 << 30
)

// relKind returns the last path segment of a relationship type,
// e.g. "worksheet", "sharedStrings", "hyperlink".
func relKind(rel *etree.Element) string {
	return path.Base(rel.SelectAttrValue("Type", ""))
}

// SheetInfo describes a worksheet declared in the workbook.
type SheetInfo struct {
	ID    int    // declared sheetId
	Name  string // display name
	Path  string // part path, e.g. "xl/worksheets/sheet1.xml"
	RelID string
}

// Workbook is an xlsx package loaded in memory for placeholder substitution.
// Calls are serialized; shared strings and media numbering are workbook-wide.
// A workbook must be discarded after any substitution error.
type Workbook struct {
	mu       sync.Mutex
	opts     *Options
	log      *slog.Logger
	parts    *partStore
	resolver *resolver

	workbookPath string
	prefix       string // directory of the workbook part, usually "xl"
	workbook     *etree.Document
	workbookRels *etree.Document
	contentTypes *etree.Document

	sharedStringsPath string
	sharedStringsDoc  *etree.Document
	strings           *SharedStrings

	sheets []SheetInfo
}

// OpenFile opens an xlsx template from disk.
func OpenFile(name string, opts ...Option) (*Workbook, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open template %q: %w", name, err)
	}
	defer f.Close()
	return Open(f, opts...)
}

// Open reads an xlsx template from r.
func Open(r io.Reader, opts ...Option) (*Workbook, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	parts, err := readPackage(r, o.password)
	if err != nil {
		return nil, err
	}
	wb := &Workbook{opts: o, log: o.logger, parts: parts, resolver: newResolver()}
	if err := wb.load(); err != nil {
		return nil, err
	}
	return wb, nil
}

// readPackage unzips (and decrypts) a package through excelize and copies
// the raw parts out of it.
func readPackage(r io.Reader, password string) (*partStore, error) {
	f, err := excelize.OpenReader(r, excelize.Options{
		Password:          password,
		UnzipSizeLimit:    unzipLimit,
		UnzipXMLSizeLimit: unzipLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	defer f.Close()

	parts := newPartStore()
	f.Pkg.Range(func(k, v any) bool {
		name, ok := k.(string)
		data, ok2 := v.([]byte)
		if ok && ok2 {
			parts.set(name, append([]byte(nil), data...))
		}
		return true
	})
	if !parts.has(contentTypesPath) {
		return nil, fmt.Errorf("open package: missing %s", contentTypesPath)
	}
	return parts, nil
}

func (wb *Workbook) load() error {
	rootRels, err := wb.parts.readDoc(rootRelsPath)
	if err != nil {
		return err
	}
	for _, rel := range rootRels.Root().SelectElements("Relationship") {
		if relKind(rel) == "officeDocument" {
			wb.workbookPath = strings.TrimPrefix(rel.SelectAttrValue("Target", ""), "/")
			break
		}
	}
	if wb.workbookPath == "" {
		return fmt.Errorf("open package: no workbook relationship")
	}
	wb.prefix = path.Dir(wb.workbookPath)

	if wb.workbook, err = wb.parts.readDoc(wb.workbookPath); err != nil {
		return err
	}
	if wb.workbookRels, err = wb.parts.readDoc(relsPathFor(wb.workbookPath)); err != nil {
		return err
	}
	if wb.contentTypes, err = wb.parts.readDoc(contentTypesPath); err != nil {
		return err
	}

	wb.strings = NewSharedStrings()
	for _, rel := range wb.workbookRels.Root().SelectElements("Relationship") {
		if relKind(rel) != "sharedStrings" {
			continue
		}
		wb.sharedStringsPath = resolveTarget(wb.workbookPath, rel.SelectAttrValue("Target", ""))
		if wb.sharedStringsDoc, err = wb.parts.readDoc(wb.sharedStringsPath); err != nil {
			return err
		}
		wb.strings = loadSharedStrings(wb.sharedStringsDoc.Root())
	}

	wb.ensureDefault("jpg", "image/jpeg")
	if wb.opts.recalculateOnOpen {
		wb.setFullCalcOnLoad()
	}
	return wb.loadSheets()
}

// loadSheets rebuilds the sheet list from workbook.xml and its relationships.
func (wb *Workbook) loadSheets() error {
	wb.sheets = wb.sheets[:0]
	sheets := wb.workbook.Root().SelectElement("sheets")
	if sheets == nil {
		return nil
	}
	for _, s := range sheets.SelectElements("sheet") {
		relID := s.SelectAttrValue("r:id", "")
		rel := findRel(wb.workbookRels.Root(), relID)
		if rel == nil {
			return fmt.Errorf("sheet %q: relationship %q not found", s.SelectAttrValue("name", ""), relID)
		}
		wb.sheets = append(wb.sheets, SheetInfo{
			ID:    attrInt(s, "sheetId", 0),
			Name:  s.SelectAttrValue("name", ""),
			Path:  resolveTarget(wb.workbookPath, rel.SelectAttrValue("Target", "")),
			RelID: relID,
		})
	}
	return nil
}

// Sheets returns the declared sheets in workbook order.
func (wb *Workbook) Sheets() []SheetInfo {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return append([]SheetInfo(nil), wb.sheets...)
}

// SharedStrings exposes the workbook string table.
func (wb *Workbook) SharedStrings() *SharedStrings {
	return wb.strings
}

func (wb *Workbook) sheetByName(name string) (SheetInfo, error) {
	for _, s := range wb.sheets {
		if s.Name == name {
			return s, nil
		}
	}
	return SheetInfo{}, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
}

// sheetByID matches the declared sheetId first, then the 1-based position.
func (wb *Workbook) sheetByID(id int) (SheetInfo, error) {
	for _, s := range wb.sheets {
		if s.ID == id {
			return s, nil
		}
	}
	if id >= 1 && id <= len(wb.sheets) {
		return wb.sheets[id-1], nil
	}
	return SheetInfo{}, fmt.Errorf("%w: id %d", ErrSheetNotFound, id)
}

func (wb *Workbook) sheetPosition(name string) int {
	for i, s := range wb.sheets {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Substitute replaces placeholders on the named sheet with data.
func (wb *Workbook) Substitute(sheetName string, data map[string]any) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	info, err := wb.sheetByName(sheetName)
	if err != nil {
		return err
	}
	return wb.substitute(info, data)
}

// SubstituteIndex replaces placeholders on the sheet with the given declared
// id, falling back to its 1-based position.
func (wb *Workbook) SubstituteIndex(id int, data map[string]any) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	info, err := wb.sheetByID(id)
	if err != nil {
		return err
	}
	return wb.substitute(info, data)
}

// SubstituteAll substitutes every sheet in workbook order.
func (wb *Workbook) SubstituteAll(data map[string]any) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	for _, info := range append([]SheetInfo(nil), wb.sheets...) {
		if err := wb.substitute(info, data); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceText rewrites a shared string in place, so every cell of every
// sheet showing oldText shows newText. It reports whether oldText existed.
func (wb *Workbook) ReplaceText(oldText, newText string) bool {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if _, ok := wb.strings.lookup[oldText]; !ok {
		return false
	}
	wb.strings.Replace(oldText, newText)
	return true
}

// Write serializes the package to w.
func (wb *Workbook) Write(w io.Writer) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if err := wb.flush(); err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range wb.parts.names() {
		data, _ := wb.parts.get(name)
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("write part %q: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write part %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close package: %w", err)
	}

	raw := buf.Bytes()
	if wb.opts.password != "" {
		encrypted, err := excelize.Encrypt(raw, &excelize.Options{Password: wb.opts.password})
		if err != nil {
			return fmt.Errorf("encrypt package: %w", err)
		}
		raw = encrypted
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write package: %w", err)
	}
	return nil
}

// Bytes returns the serialized package.
func (wb *Workbook) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveAs writes the package to a file.
func (wb *Workbook) SaveAs(name string) error {
	out, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create output file %q: %w", name, err)
	}
	if err := wb.Write(out); err != nil {
		out.Close()
		os.Remove(name)
		return err
	}
	return out.Close()
}

// flush writes the workbook-level trees back into the part store.
func (wb *Workbook) flush() error {
	if wb.sharedStringsDoc == nil && wb.strings.Len() > 0 {
		if err := wb.initSharedStrings(); err != nil {
			return err
		}
	}
	if wb.sharedStringsDoc != nil {
		wb.strings.writeTo(wb.sharedStringsDoc.Root())
		if err := wb.parts.writeDoc(wb.sharedStringsPath, wb.sharedStringsDoc); err != nil {
			return err
		}
	}
	if err := wb.parts.writeDoc(wb.workbookPath, wb.workbook); err != nil {
		return err
	}
	if err := wb.parts.writeDoc(relsPathFor(wb.workbookPath), wb.workbookRels); err != nil {
		return err
	}
	return wb.parts.writeDoc(contentTypesPath, wb.contentTypes)
}

// initSharedStrings creates the string table part of a workbook that had none.
func (wb *Workbook) initSharedStrings() error {
	id, err := nextRelID(wb.workbookRels.Root())
	if err != nil {
		return err
	}
	wb.sharedStringsPath = wb.prefix + "/sharedStrings.xml"
	rel := wb.workbookRels.Root().CreateElement("Relationship")
	rel.CreateAttr("Id", id)
	rel.CreateAttr("Type", nsOfficeRels+"/sharedStrings")
	rel.CreateAttr("Target", relativeTarget(wb.workbookPath, wb.sharedStringsPath))
	wb.sharedStringsDoc = newDoc("sst", "xmlns", nsSpreadsheetML)
	wb.addOverride("/"+wb.sharedStringsPath, ctSharedStrings)
	return nil
}

// removeCalcChain drops the calculation chain; Excel rebuilds it on open.
func (wb *Workbook) removeCalcChain() {
	root := wb.workbookRels.Root()
	for _, rel := range root.SelectElements("Relationship") {
		if relKind(rel) != "calcChain" {
			continue
		}
		name := resolveTarget(wb.workbookPath, rel.SelectAttrValue("Target", ""))
		wb.parts.remove(name)
		wb.removeOverride("/" + name)
		root.RemoveChild(rel)
		wb.log.Debug("calc chain removed", slog.String("part", name))
	}
}

// setFullCalcOnLoad sets calcPr/@fullCalcOnLoad, creating calcPr when missing.
func (wb *Workbook) setFullCalcOnLoad() {
	root := wb.workbook.Root()
	calcPr := root.SelectElement("calcPr")
	if calcPr == nil {
		calcPr = etree.NewElement("calcPr")
		calcPr.Space = root.Space
		insertAfter(root, calcPr, "definedNames", "externalReferences", "functionGroups", "sheets")
	}
	calcPr.CreateAttr("fullCalcOnLoad", "1")
}

// insertAfter places child after the last existing element named in tags
// (checked in order), or appends it.
func insertAfter(parent, child *etree.Element, tags ...string) {
	for _, tag := range tags {
		if anchor := parent.SelectElement(tag); anchor != nil {
			parent.InsertChildAt(anchor.Index()+1, child)
			return
		}
	}
	parent.AddChild(child)
}

// insertBefore places child before the first existing element named in tags,
// or appends it.
func insertBefore(parent, child *etree.Element, tags ...string) {
	for _, c := range parent.ChildElements() {
		for _, tag := range tags {
			if c.Tag == tag {
				parent.InsertChildAt(c.Index(), child)
				return
			}
		}
	}
	parent.AddChild(child)
}

func (wb *Workbook) addOverride(partName, contentType string) {
	root := wb.contentTypes.Root()
	for _, o := range root.SelectElements("Override") {
		if o.SelectAttrValue("PartName", "") == partName {
			o.CreateAttr("ContentType", contentType)
			return
		}
	}
	o := root.CreateElement("Override")
	o.CreateAttr("PartName", partName)
	o.CreateAttr("ContentType", contentType)
}

func (wb *Workbook) removeOverride(partName string) {
	root := wb.contentTypes.Root()
	for _, o := range root.SelectElements("Override") {
		if o.SelectAttrValue("PartName", "") == partName {
			root.RemoveChild(o)
		}
	}
}

// ensureDefault declares a content type for a file extension if none exists.
func (wb *Workbook) ensureDefault(ext, contentType string) {
	root := wb.contentTypes.Root()
	for _, d := range root.SelectElements("Default") {
		if strings.EqualFold(d.SelectAttrValue("Extension", ""), ext) {
			return
		}
	}
	d := etree.NewElement("Default")
	d.CreateAttr("Extension", ext)
	d.CreateAttr("ContentType", contentType)
	// Defaults precede Overrides
	insertBefore(root, d, "Override")
}

var worksheetPartRe = regexp.MustCompile(`/worksheets/sheet(\d+)\.xml$`)

// CopySheet appends a copy of the named sheet. The copy keeps the source's
// relationships except tables (table names are workbook-unique); drawings are
// duplicated so later substitutions on either sheet stay independent.
func (wb *Workbook) CopySheet(sheetName, copyName string) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	src, err := wb.sheetByName(sheetName)
	if err != nil {
		return err
	}
	pos := len(wb.sheets)
	if copyName == "" {
		copyName = "Sheet" + strconv.Itoa(pos+1)
	}
	if wb.sheetPosition(copyName) >= 0 {
		return fmt.Errorf("copy sheet %q: sheet %q already exists", sheetName, copyName)
	}

	n := wb.parts.maxFileID(worksheetPartRe) + 1
	partName := path.Join(path.Dir(src.Path), "sheet"+strconv.Itoa(n)+".xml")

	doc, err := wb.parts.readDoc(src.Path)
	if err != nil {
		return err
	}
	root := doc.Root()
	if tp := root.SelectElement("tableParts"); tp != nil {
		root.RemoveChild(tp)
	}
	if ld := root.SelectElement("legacyDrawing"); ld != nil {
		root.RemoveChild(ld)
	}
	if err := wb.copySheetRels(src.Path, partName); err != nil {
		return err
	}
	if err := wb.parts.writeDoc(partName, doc); err != nil {
		return err
	}
	wb.addOverride("/"+partName, ctWorksheet)

	relID, err := nextRelID(wb.workbookRels.Root())
	if err != nil {
		return err
	}
	rel := wb.workbookRels.Root().CreateElement("Relationship")
	rel.CreateAttr("Id", relID)
	rel.CreateAttr("Type", nsOfficeRels+"/worksheet")
	rel.CreateAttr("Target", relativeTarget(wb.workbookPath, partName))

	maxID := 0
	for _, s := range wb.sheets {
		maxID = max(maxID, s.ID)
	}
	sheets := wb.workbook.Root().SelectElement("sheets")
	el := sheets.CreateElement("sheet")
	el.CreateAttr("name", copyName)
	el.CreateAttr("sheetId", strconv.Itoa(maxID+1))
	el.CreateAttr("r:id", relID)

	wb.copyDefinedNames(src, copyName, pos)
	wb.log.Debug("sheet copied", slog.String("sheet", sheetName), slog.String("copy", copyName))
	return wb.loadSheets()
}

var drawingPartRe = regexp.MustCompile(`/drawings/drawing(\d+)\.xml$`)

// copySheetRels copies the relationships of src onto dst, dropping tables
// and comments and duplicating drawings.
func (wb *Workbook) copySheetRels(src, dst string) error {
	relsName := relsPathFor(src)
	if !wb.parts.has(relsName) {
		return nil
	}
	rels, err := wb.parts.readDoc(relsName)
	if err != nil {
		return err
	}
	root := rels.Root()
	for _, rel := range root.SelectElements("Relationship") {
		switch relKind(rel) {
		case "table", "comments", "vmlDrawing":
			root.RemoveChild(rel)
		case "drawing":
			from := resolveTarget(src, rel.SelectAttrValue("Target", ""))
			data, ok := wb.parts.get(from)
			if !ok {
				continue
			}
			to := path.Join(path.Dir(from), "drawing"+strconv.Itoa(wb.parts.maxFileID(drawingPartRe)+1)+".xml")
			wb.parts.set(to, append([]byte(nil), data...))
			if drels, ok := wb.parts.get(relsPathFor(from)); ok {
				wb.parts.set(relsPathFor(to), append([]byte(nil), drels...))
			}
			wb.addOverride("/"+to, ctDrawing)
			rel.CreateAttr("Target", relativeTarget(dst, to))
		}
	}
	return wb.parts.writeDoc(relsPathFor(dst), rels)
}

// copyDefinedNames duplicates names that target src as names scoped to the copy.
func (wb *Workbook) copyDefinedNames(src SheetInfo, copyName string, pos int) {
	names := wb.workbook.Root().SelectElement("definedNames")
	if names == nil {
		return
	}
	for _, dn := range names.SelectElements("definedName") {
		text := dn.Text()
		if nameSheet(text) != src.Name {
			continue
		}
		cp := cloneElement(dn, false)
		cp.CreateAttr("localSheetId", strconv.Itoa(pos))
		cp.SetText(replaceSheetQualifier(text, src.Name, copyName))
		names.AddChild(cp)
	}
}

// DeleteSheet removes a sheet, its part, relationships and the defined
// names that belong to it.
func (wb *Workbook) DeleteSheet(sheetName string) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	info, err := wb.sheetByName(sheetName)
	if err != nil {
		return err
	}
	pos := wb.sheetPosition(sheetName)
	root := wb.workbook.Root()

	sheets := root.SelectElement("sheets")
	for _, s := range sheets.SelectElements("sheet") {
		if s.SelectAttrValue("name", "") == sheetName {
			sheets.RemoveChild(s)
		}
	}
	if rel := findRel(wb.workbookRels.Root(), info.RelID); rel != nil {
		wb.workbookRels.Root().RemoveChild(rel)
	}
	wb.parts.remove(info.Path)
	wb.parts.remove(relsPathFor(info.Path))
	wb.removeOverride("/" + info.Path)

	if names := root.SelectElement("definedNames"); names != nil {
		for _, dn := range names.SelectElements("definedName") {
			local := attrInt(dn, "localSheetId", -1)
			switch {
			case local == pos || nameSheet(dn.Text()) == sheetName:
				names.RemoveChild(dn)
			case local > pos:
				dn.CreateAttr("localSheetId", strconv.Itoa(local-1))
			}
		}
		if len(names.ChildElements()) == 0 {
			root.RemoveChild(names)
		}
	}

	remaining := len(wb.sheets) - 1
	if views := root.SelectElement("bookViews"); views != nil {
		for _, v := range views.SelectElements("workbookView") {
			for _, key := range []string{"activeTab", "firstSheet"} {
				if attrInt(v, key, 0) >= remaining {
					v.CreateAttr(key, "0")
				}
			}
		}
	}
	wb.log.Debug("sheet deleted", slog.String("sheet", sheetName))
	return wb.loadSheets()
}

// nameSheet returns the unquoted sheet a defined-name formula points at,
// e.g. "'My Sheet'!$A$1" → "My Sheet". Empty when unqualified.
func nameSheet(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "'") {
		for i := 1; i < len(text); i++ {
			if text[i] != '\'' {
				continue
			}
			if i+1 < len(text) && text[i+1] == '\'' {
				i++
				continue
			}
			if i+1 < len(text) && text[i+1] == '!' {
				return unquoteSheet(text[:i+1])
			}
			return ""
		}
		return ""
	}
	idx := strings.Index(text, "!")
	if idx < 0 {
		return ""
	}
	return text[:idx]
}

func unquoteSheet(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

// quoteSheet quotes a sheet name when a formula requires it.
func quoteSheet(name string) string {
	for i, r := range name {
		if !(r == '_' || r == '.' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (i > 0 && r >= '0' && r <= '9')) {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

// replaceSheetQualifier rewrites every "from!" qualifier in text to "to!".
func replaceSheetQualifier(text, from, to string) string {
	text = strings.ReplaceAll(text, "'"+strings.ReplaceAll(from, "'", "''")+"'!", quoteSheet(to)+"!")
	if quoteSheet(from) == from {
		text = strings.ReplaceAll(text, from+"!", quoteSheet(to)+"!")
	}
	return text
}
