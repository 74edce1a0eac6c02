package handover

import (
	"regexp"
)

// Anchor is the location of a type-identifying phrase in the raw text
type Anchor struct {
	Type  DocType `json:"type"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Anchors holds everything the scanner found in one text. Concession and
// Return are first-match only; RAT keeps every occurrence in text order.
type Anchors struct {
	Concession *Anchor  `json:"concession,omitempty"`
	Return     *Anchor  `json:"return,omitempty"`
	RAT        []Anchor `json:"rat,omitempty"`
}

// Empty reports whether no anchor of any type was found
func (a Anchors) Empty() bool {
	return a.Concession == nil && a.Return == nil && len(a.RAT) == 0
}

// Patterns run against the folded view, so accents and case are already gone.
var (
	concessionPattern = regexp.MustCompile(`termo\s*de\s*concessao|entrego\s*para\s*uso`)
	returnPattern     = regexp.MustCompile(`termo\s*de\s*devolucao|devolucao\s*de\s*equipamento`)
	ratPattern        = regexp.MustCompile(`relatorio\s*de\s*ativacao\s*tecnica`)
)

// Scan locates the concession, return and RAT anchors in text
func Scan(text string) Anchors {
	f := fold(text)
	a := scanTerms(f)
	a.RAT = scanRAT(f)
	return a
}

// scanTerms finds the first concession and return anchors only
func scanTerms(f folded) Anchors {
	var a Anchors
	if loc := concessionPattern.FindStringIndex(f.text); loc != nil {
		a.Concession = newAnchor(f, DocTypeConcession, loc)
	}
	if loc := returnPattern.FindStringIndex(f.text); loc != nil {
		a.Return = newAnchor(f, DocTypeReturn, loc)
	}
	return a
}

func scanRAT(f folded) []Anchor {
	locs := ratPattern.FindAllStringIndex(f.text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Anchor, 0, len(locs))
	for _, loc := range locs {
		out = append(out, *newAnchor(f, DocTypeRAT, loc))
	}
	return out
}

func newAnchor(f folded, t DocType, loc []int) *Anchor {
	start, end := f.raw(loc[0], loc[1])
	return &Anchor{Type: t, Start: start, End: end}
}
