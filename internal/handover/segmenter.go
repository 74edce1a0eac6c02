package handover

import (
	"sort"
)

// DefaultMaxDepth allows one level of re-segmentation inside RAT blocks
const DefaultMaxDepth = 1

// Span is a contiguous range of the raw text owned by one sub-document.
// Origin is the internal sub-type whose grammar applies; for concession and
// return spans it equals Type, for RAT spans it is the embedded section type.
type Span struct {
	Type   DocType `json:"type"`
	Origin DocType `json:"origin"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

// Len returns the span length in bytes
func (s Span) Len() int {
	return s.End - s.Start
}

// Text cuts the span out of the raw text it was computed on
func (s Span) Text(raw string) string {
	return raw[s.Start:s.End]
}

// Segmenter turns anchors into tagged, ordered spans
type Segmenter struct {
	maxDepth int
}

// NewSegmenter creates a segmenter with the default RAT recursion depth
func NewSegmenter() *Segmenter {
	return &Segmenter{maxDepth: DefaultMaxDepth}
}

// NewSegmenterWithDepth creates a segmenter with a custom RAT recursion
// depth. Negative values are treated as zero (RAT blocks are ignored).
func NewSegmenterWithDepth(maxDepth int) *Segmenter {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Segmenter{maxDepth: maxDepth}
}

// Segment scans text and splits it into spans
func (s *Segmenter) Segment(text string) []Span {
	return s.SegmentAnchors(text, Scan(text))
}

// SegmentAnchors splits text using anchors that were already scanned on it.
// Concession/return spans come first in text order, followed by the spans of
// each RAT block in anchor order.
func (s *Segmenter) SegmentAnchors(text string, anchors Anchors) []Span {
	return s.segment(text, 0, 0, anchors)
}

// segment works on text, which is the tail of the original text starting at
// base. RAT anchors are only honoured while depth < maxDepth; nested calls
// receive anchors without RAT entries, so the recursion ends after one level.
func (s *Segmenter) segment(text string, base, depth int, anchors Anchors) []Span {
	spans := termSpans(anchors.Concession, anchors.Return, len(text))
	for i := range spans {
		spans[i].Start += base
		spans[i].End += base
	}

	if depth >= s.maxDepth {
		return spans
	}

	for _, rat := range anchors.RAT {
		tail := text[rat.Start:]
		inner := scanTerms(fold(tail))
		for _, sub := range s.segment(tail, base+rat.Start, depth+1, inner) {
			sub.Type = DocTypeRAT
			spans = append(spans, sub)
		}
	}
	return spans
}

// termSpans applies the concession/return tie-break: the earlier anchor runs
// up to the later one, the later one runs to the end of the text. Anything
// before the first anchor is header boilerplate and is dropped.
func termSpans(con, ret *Anchor, end int) []Span {
	switch {
	case con != nil && ret != nil:
		first, second := *con, *ret
		if second.Start < first.Start {
			first, second = second, first
		}
		return []Span{
			{Type: first.Type, Origin: first.Type, Start: first.Start, End: second.Start},
			{Type: second.Type, Origin: second.Type, Start: second.Start, End: end},
		}
	case con != nil:
		return []Span{{Type: DocTypeConcession, Origin: DocTypeConcession, Start: con.Start, End: end}}
	case ret != nil:
		return []Span{{Type: DocTypeReturn, Origin: DocTypeReturn, Start: ret.Start, End: end}}
	default:
		return nil
	}
}

// Coverage returns the union length of the given spans. Used by diagnostics
// to report how much of a document was attributed to a sub-document.
func Coverage(spans []Span) int {
	if len(spans) == 0 {
		return 0
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	total := 0
	curStart, curEnd := sorted[0].Start, sorted[0].End
	for _, sp := range sorted[1:] {
		if sp.Start > curEnd {
			total += curEnd - curStart
			curStart, curEnd = sp.Start, sp.End
			continue
		}
		if sp.End > curEnd {
			curEnd = sp.End
		}
	}
	return total + curEnd - curStart
}
