package handover

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// folded is a case-folded, accent-stripped view of a raw text. offs maps
// every byte of the view back to the byte offset of the raw rune it came
// from, so matches found in the view can be cut out of the raw text.
type folded struct {
	text string
	offs []int
}

// fold builds the matching view of raw. Compatibility decomposition turns
// "nº" into "no" and ligatures into plain letters. Transformers and casers
// are stateful, so a fresh chain is built per call.
func fold(raw string) folded {
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	caser := cases.Fold()

	var b strings.Builder
	b.Grow(len(raw))
	offs := make([]int, 0, len(raw)+1)

	for i, r := range raw {
		var f string
		switch {
		case r < utf8.RuneSelf:
			if 'A' <= r && r <= 'Z' {
				r += 'a' - 'A'
			}
			f = string(r)
		case unicode.IsSpace(r):
			f = " "
		default:
			s, _, err := transform.String(stripMarks, string(r))
			if err != nil || s == "" {
				s = string(r)
			}
			f = caser.String(s)
		}
		for j := 0; j < len(f); j++ {
			offs = append(offs, i)
		}
		b.WriteString(f)
	}
	offs = append(offs, len(raw))

	return folded{text: b.String(), offs: offs}
}

// raw converts a [start, end) range of the view into raw byte offsets
func (f folded) raw(start, end int) (int, int) {
	return f.offs[start], f.offs[end]
}

// Fold returns the accent-stripped, case-folded form of s. Labels and
// allow-list entries are compared in this form.
func Fold(s string) string {
	return fold(s).text
}
