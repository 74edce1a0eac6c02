package handover

import (
	"fmt"
	"log/slog"
	"sync"
)

// Extractor maps the text of one span to a record
type Extractor interface {
	Extract(text string) Record
}

// Registry holds one extractor per internal document type. RAT spans are
// extracted with the grammar of their Origin.
type Registry struct {
	mu         sync.RWMutex
	extractors map[DocType]Extractor
	logger     *slog.Logger
}

// NewRegistry creates a registry with the concession and return grammars
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		extractors: make(map[DocType]Extractor),
		logger:     logger,
	}
	r.Register(DocTypeConcession, ConcessionGrammar())
	r.Register(DocTypeReturn, ReturnGrammar())
	return r
}

// Register sets the extractor used for spans of the given origin
func (r *Registry) Register(t DocType, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[t] = e
}

// Extract runs the extractor for t on text. For RAT the embedded section
// type is detected first; a RAT block with no section falls back to the
// concession grammar.
func (r *Registry) Extract(text string, t DocType) Record {
	origin := t
	if t == DocTypeRAT {
		origin = DocTypeConcession
		a := scanTerms(fold(text))
		switch {
		case a.Concession != nil && (a.Return == nil || a.Concession.Start <= a.Return.Start):
			origin = DocTypeConcession
		case a.Return != nil:
			origin = DocTypeReturn
		}
	}
	rec := r.run(origin, text)
	rec[FieldTerm] = string(t)
	return rec
}

// ExtractSpan extracts the record for one span of raw
func (r *Registry) ExtractSpan(raw string, sp Span) Record {
	rec := r.run(sp.Origin, sp.Text(raw))
	rec[FieldTerm] = string(sp.Type)
	return rec
}

// ExtractAll extracts one record per span, in span order. A text without
// any span still yields a single UNKNOWN record so the document shows up in
// the output.
func (r *Registry) ExtractAll(raw string, spans []Span) []Record {
	if len(spans) == 0 {
		return []Record{NewRecord(DocTypeUnknown)}
	}
	out := make([]Record, 0, len(spans))
	for _, sp := range spans {
		out = append(out, r.ExtractSpan(raw, sp))
	}
	return out
}

// run calls the extractor and turns a panic into an empty record, so a
// malformed span cannot take the batch down with it.
func (r *Registry) run(origin DocType, text string) (rec Record) {
	r.mu.RLock()
	ex, ok := r.extractors[origin]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("extract.no_grammar", "origin", string(origin))
		return Record{}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("extract.panic", "origin", string(origin), "panic", fmt.Sprint(p))
			rec = Record{}
		}
	}()
	rec = ex.Extract(text)
	if rec == nil {
		rec = Record{}
	}
	return rec
}

// Classifier ties the scanner, segmenter and registry together: raw text in,
// ordered records out.
type Classifier struct {
	segmenter *Segmenter
	registry  *Registry
}

// NewClassifier creates a classifier. Nil arguments get defaults.
func NewClassifier(seg *Segmenter, reg *Registry) *Classifier {
	if seg == nil {
		seg = NewSegmenter()
	}
	if reg == nil {
		reg = NewRegistry(nil)
	}
	return &Classifier{segmenter: seg, registry: reg}
}

// Classify segments text and extracts every span
func (c *Classifier) Classify(text string) []Record {
	records, _ := c.ClassifySpans(text)
	return records
}

// ClassifySpans is Classify that also returns the spans the records came from
func (c *Classifier) ClassifySpans(text string) ([]Record, []Span) {
	spans := c.segmenter.Segment(text)
	return c.registry.ExtractAll(text, spans), spans
}
