package xltpl

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// substituteHyperlinks replaces placeholders inside external hyperlink
// targets. Only top-level data names are used; a target is rewritten when at
// least one placeholder resolved.
func (e *engine) substituteHyperlinks() {
	rels := e.sh.relsRoot()
	if rels == nil {
		return
	}
	for _, rel := range rels.SelectElements("Relationship") {
		if relKind(rel) != "hyperlink" {
			continue
		}
		target := rel.SelectAttrValue("Target", "")
		// targets holding placeholders are usually encoded twice
		decoded := target
		for range 2 {
			d, err := decodeURI(decoded)
			if err != nil {
				break
			}
			decoded = d
		}

		changed := false
		decoded = replacePlaceholders(decoded, func(p Placeholder) (string, bool) {
			v, ok := e.data[p.Name]
			if !ok {
				return "", false
			}
			changed = true
			return ValueOf(v).Stringify(), true
		})
		if changed {
			rel.CreateAttr("Target", encodeURI(decoded))
		}
	}
}

const uriReserved = ";/?:@&=+$,#"

// encodeURI percent-encodes s the way ECMAScript encodeURI does: reserved
// characters and the unreserved mark set are left as is.
func encodeURI(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isURIUnescaped(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.IndexByte("-_.!~*'()", c) >= 0:
		return true
	case strings.IndexByte(uriReserved, c) >= 0:
		return true
	}
	return false
}

// decodeURI reverses encodeURI. Escapes of reserved characters are kept, as
// ECMAScript decodeURI does. Malformed escapes or invalid UTF-8 fail.
func decodeURI(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '%' {
			b.WriteByte(s[i])
			i++
			continue
		}
		c, ok := unhexByte(s, i)
		if !ok {
			return "", fmt.Errorf("malformed URI escape at %d", i)
		}
		if c < utf8.RuneSelf {
			if strings.IndexByte(uriReserved, c) >= 0 {
				b.WriteString(s[i : i+3])
			} else {
				b.WriteByte(c)
			}
			i += 3
			continue
		}

		n := utf8SeqLen(c)
		if n == 0 {
			return "", fmt.Errorf("malformed URI sequence at %d", i)
		}
		seq := []byte{c}
		j := i + 3
		for k := 1; k < n; k++ {
			cc, ok := unhexByte(s, j)
			if !ok || cc&0xc0 != 0x80 {
				return "", fmt.Errorf("malformed URI sequence at %d", i)
			}
			seq = append(seq, cc)
			j += 3
		}
		if !utf8.Valid(seq) {
			return "", fmt.Errorf("malformed URI sequence at %d", i)
		}
		b.Write(seq)
		i = j
	}
	return b.String(), nil
}

func unhexByte(s string, i int) (byte, bool) {
	if i+2 >= len(s) || s[i] != '%' {
		return 0, false
	}
	hi, ok1 := unhex(s[i+1])
	lo, ok2 := unhex(s[i+2])
	return hi<<4 | lo, ok1 && ok2
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// utf8SeqLen returns the encoded length announced by a UTF-8 lead byte.
func utf8SeqLen(c byte) int {
	switch {
	case c&0xe0 == 0xc0:
		return 2
	case c&0xf0 == 0xe0:
		return 3
	case c&0xf8 == 0xf0:
		return 4
	}
	return 0
}
