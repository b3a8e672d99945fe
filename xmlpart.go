package xltpl

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

const xmlHeader = `version="1.0" encoding="UTF-8" standalone="yes"`

// partStore holds the raw package parts keyed by zip path.
type partStore struct {
	files map[string][]byte
}

func newPartStore() *partStore {
	return &partStore{files: make(map[string][]byte)}
}

func (p *partStore) get(name string) ([]byte, bool) {
	b, ok := p.files[name]
	return b, ok
}

func (p *partStore) has(name string) bool {
	_, ok := p.files[name]
	return ok
}

func (p *partStore) set(name string, data []byte) {
	p.files[name] = data
}

func (p *partStore) remove(name string) {
	delete(p.files, name)
}

// names returns part names with [Content_Types].xml first, the rest sorted.
func (p *partStore) names() []string {
	out := make([]string, 0, len(p.files))
	for name := range p.files {
		if name != contentTypesPath {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	if p.has(contentTypesPath) {
		out = append([]string{contentTypesPath}, out...)
	}
	return out
}

// readDoc parses a part into an element tree.
func (p *partStore) readDoc(name string) (*etree.Document, error) {
	data, ok := p.get(name)
	if !ok {
		return nil, fmt.Errorf("part %q not found", name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse %q: %w", name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parse %q: no root element", name)
	}
	return doc, nil
}

// writeDoc serializes doc back into the store.
func (p *partStore) writeDoc(name string, doc *etree.Document) error {
	data, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serialize %q: %w", name, err)
	}
	p.set(name, data)
	return nil
}

// maxFileID returns the largest n among parts matching re, whose first
// group captures n. Zero when nothing matches.
func (p *partStore) maxFileID(re *regexp.Regexp) int {
	maxID := 0
	for name := range p.files {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxID {
			maxID = n
		}
	}
	return maxID
}

var mediaPartRe = regexp.MustCompile(`/media/image(\d+)\.([A-Za-z0-9]+)$`)

// maxMediaID returns the largest n among media/image<n>.<ext> parts.
func (p *partStore) maxMediaID(ext string) int {
	maxID := 0
	for name := range p.files {
		m := mediaPartRe.FindStringSubmatch(name)
		if m == nil || m[2] != ext {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxID {
			maxID = n
		}
	}
	return maxID
}

// newDoc creates a document with the standard XML declaration and root.
func newDoc(root string, attrs ...string) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", xmlHeader)
	el := doc.CreateElement(root)
	for i := 0; i+1 < len(attrs); i += 2 {
		el.CreateAttr(attrs[i], attrs[i+1])
	}
	return doc
}

// cloneElement copies an element. A shallow clone keeps tag and attributes only.
func cloneElement(e *etree.Element, deep bool) *etree.Element {
	if deep {
		return e.Copy()
	}
	n := etree.NewElement(e.Tag)
	n.Space = e.Space
	for _, a := range e.Attr {
		n.CreateAttr(a.FullKey(), a.Value)
	}
	return n
}

// replaceChildren makes children the only child nodes of parent.
func replaceChildren(parent *etree.Element, children []*etree.Element) {
	for i := len(parent.Child) - 1; i >= 0; i-- {
		parent.RemoveChildAt(i)
	}
	for _, c := range children {
		parent.AddChild(c)
	}
}

// clearChildren removes every child node of e.
func clearChildren(e *etree.Element) {
	replaceChildren(e, nil)
}

// attrInt reads an integer attribute, returning def when absent or invalid.
func attrInt(e *etree.Element, key string, def int) int {
	if a := e.SelectAttr(key); a != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(a.Value)); err == nil {
			return n
		}
	}
	return def
}

// attrFloat reads a float attribute, returning def when absent or invalid.
func attrFloat(e *etree.Element, key string, def float64) float64 {
	if a := e.SelectAttr(key); a != nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64); err == nil {
			return f
		}
	}
	return def
}

var relIDRe = regexp.MustCompile(`^rId(\d+)$`)

// nextRelID returns "rId<n>" one past the largest Id among the relationships.
func nextRelID(rels *etree.Element) (string, error) {
	maxID := 0
	for _, rel := range rels.SelectElements("Relationship") {
		id := rel.SelectAttrValue("Id", "")
		m := relIDRe.FindStringSubmatch(id)
		if m == nil {
			return "", fmt.Errorf("%w: relationship id %q", ErrIDExhaustion, id)
		}
		if n, _ := strconv.Atoi(m[1]); n > maxID {
			maxID = n
		}
	}
	return "rId" + strconv.Itoa(maxID+1), nil
}

// findRel returns the relationship with the given Id.
func findRel(rels *etree.Element, id string) *etree.Element {
	if rels == nil {
		return nil
	}
	for _, rel := range rels.SelectElements("Relationship") {
		if rel.SelectAttrValue("Id", "") == id {
			return rel
		}
	}
	return nil
}

// relsPathFor returns the relationships part path of a part: a/b.xml → a/_rels/b.xml.rels.
func relsPathFor(part string) string {
	return path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
}

// resolveTarget resolves a relationship target relative to the owning part.
func resolveTarget(owner, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join(path.Dir(owner), target)
}

// relativeTarget renders part as a target relative to owner's directory.
func relativeTarget(owner, part string) string {
	from := strings.Split(path.Dir(owner), "/")
	to := strings.Split(part, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var b strings.Builder
	for range from[i:] {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(to[i:], "/"))
	return b.String()
}
