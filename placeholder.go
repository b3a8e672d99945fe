package xltpl

import (
	"regexp"
	"strings"
)

// Placeholder types.
const (
	TypeNormal = "normal"
	TypeTable  = "table"
	TypeImage  = "image"
)

// placeholderRe matches ${[type:]name[.key][:subtype]}. No group may cross a
// brace, so two adjacent markers never merge into one match.
var placeholderRe = regexp.MustCompile(`\$\{(?:([^{}]+?):)?([^{}]+?)(?:\.([^{}]+?))?(?::([^{}]+?))??\}`)

// Placeholder is one ${...} marker found in a string.
type Placeholder struct {
	Placeholder string // full matched text, including "${" and "}"
	Type        string // normal, table, image or a custom prefix
	Name        string
	Key         string
	SubType     string
	Full        bool // the marker is the entire string
}

// Path returns the dotted data path "name[.key]".
func (p Placeholder) Path() string {
	if p.Key == "" {
		return p.Name
	}
	return p.Name + "." + p.Key
}

// IsImage reports whether the placeholder embeds an image.
func (p Placeholder) IsImage() bool {
	return p.Type == TypeImage || p.SubType == TypeImage
}

// ExtractPlaceholders returns every marker in text, in order of appearance.
func ExtractPlaceholders(text string) []Placeholder {
	if !strings.Contains(text, "${") {
		return nil
	}
	locs := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Placeholder, 0, len(locs))
	for _, loc := range locs {
		out = append(out, placeholderAt(text, loc))
	}
	return out
}

// placeholderAt builds the marker described by one submatch index slice.
func placeholderAt(text string, loc []int) Placeholder {
	group := func(i int) string {
		if loc[2*i] < 0 {
			return ""
		}
		return text[loc[2*i]:loc[2*i+1]]
	}
	p := Placeholder{
		Placeholder: group(0),
		Type:        group(1),
		Name:        group(2),
		Key:         group(3),
		SubType:     group(4),
		Full:        loc[1]-loc[0] == len(text),
	}
	if p.Type == "" {
		p.Type = TypeNormal
	}
	return p
}

// replacePlaceholders substitutes each marker of text with fn's result in a
// single left-to-right pass. Markers for which fn reports false are kept, and
// text produced by fn is never scanned again.
func replacePlaceholders(text string, fn func(Placeholder) (string, bool)) string {
	locs := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		s, ok := fn(placeholderAt(text, loc))
		if !ok {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(s)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
