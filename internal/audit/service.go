// Package audit runs handover documents through extraction, validation and
// the spreadsheet sink, one document or one batch at a time.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/handover-auditor/internal/handover"
	"github.com/a3tai/handover-auditor/internal/rules"
)

// DefaultWorkers is used when Options.Workers is not positive
const DefaultWorkers = 4

// Outcome values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// TextSource turns a document path into plain text
type TextSource interface {
	TextOf(ctx context.Context, path string) (string, error)
}

// Sink receives validated records, in input order
type Sink interface {
	Append(rec handover.Record) error
}

// ProgressSink receives batch completion percentages. Publish must not block.
type ProgressSink interface {
	Publish(percent int)
}

// History persists finished runs
type History interface {
	Save(ctx context.Context, run *Run) error
}

// Outcome is one line of the per-document report. Every record yields one
// outcome; a document that failed before producing records yields one
// error outcome.
type Outcome struct {
	Name   string           `json:"name"`
	Status string           `json:"status"`
	Type   handover.DocType `json:"type,omitempty"`
	Rule   rules.RuleName   `json:"rule,omitempty"`
	Reason string           `json:"reason,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// DocumentResult is what ProcessDocument produced for one file
type DocumentResult struct {
	Name     string
	Path     string
	Records  []handover.Record
	Outcomes []Outcome
	Err      error
}

// Run is the report of one ProcessBatch call
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Documents  int       `json:"documents"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"results"`
	BatchResult
}

// Options wires the collaborators of a Service. Source and Validator are
// required; the rest are optional.
type Options struct {
	Source     TextSource
	Classifier *handover.Classifier
	Validator  *rules.Validator
	Sink       Sink
	Progress   ProgressSink
	History    History
	Workers    int
	Logger     *slog.Logger
}

// Service is the document audit pipeline
type Service struct {
	source     TextSource
	classifier *handover.Classifier
	validator  *rules.Validator
	sink       Sink
	progress   ProgressSink
	history    History
	workers    int
	logger     *slog.Logger
}

// NewService creates an audit service
func NewService(opts Options) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("audit: text source is required")
	}
	if opts.Validator == nil {
		return nil, errors.New("audit: validator is required")
	}
	if opts.Classifier == nil {
		opts.Classifier = handover.NewClassifier(nil, nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		source:     opts.Source,
		classifier: opts.Classifier,
		validator:  opts.Validator,
		sink:       opts.Sink,
		progress:   opts.Progress,
		history:    opts.History,
		workers:    opts.Workers,
		logger:     opts.Logger,
	}, nil
}

// Policy returns the rule policy records are validated against
func (s *Service) Policy() rules.Policy {
	return s.validator.Policy()
}

// ProcessDocument extracts and validates every record of one document. It
// does not touch the sink. Extraction failures are reported on the result,
// never returned.
func (s *Service) ProcessDocument(ctx context.Context, path string) DocumentResult {
	name := filepath.Base(path)
	res := DocumentResult{Name: name, Path: path}

	text, err := s.source.TextOf(ctx, path)
	if err != nil {
		s.logger.Warn("audit.document.failed", "name", name, "error", err)
		res.Err = err
		res.Outcomes = []Outcome{{Name: name, Status: OutcomeError, Error: err.Error()}}
		return res
	}

	records, spans := s.classifier.ClassifySpans(text)
	s.logger.Debug("audit.document.segmented",
		"name", name, "spans", len(spans), "chars", len(text), "covered", handover.Coverage(spans))

	for _, rec := range records {
		rec[handover.FieldName] = name
		result := s.validator.Validate(ctx, rec)
		res.Records = append(res.Records, rec)
		res.Outcomes = append(res.Outcomes, outcomeOf(name, rec, result))
	}
	return res
}

// ProcessBatch audits paths on up to Workers goroutines. Records are appended
// to the sink and folded in input order once every document is done. The
// returned run always carries at least one outcome per path; a non-nil error
// means the context ended before the batch finished.
func (s *Service) ProcessBatch(ctx context.Context, paths []string) (*Run, error) {
	run := &Run{ID: uuid.NewString(), StartedAt: time.Now(), Documents: len(paths)}
	s.logger.Info("audit.batch.start", "run", run.ID, "documents", len(paths), "workers", s.workers)

	docs := make([]DocumentResult, len(paths))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range paths {
		g.Go(func() error {
			docs[i] = s.ProcessDocument(gctx, path)
			s.publish(int(done.Add(1)), len(paths))
			return nil
		})
	}
	_ = g.Wait()

	var records []handover.Record
	for i := range docs {
		doc := &docs[i]
		if doc.Err != nil {
			run.Failed++
		}
		s.appendRecords(doc)
		records = append(records, doc.Records...)
		run.Outcomes = append(run.Outcomes, doc.Outcomes...)
	}
	run.BatchResult = Fold(records)
	run.FinishedAt = time.Now()

	if s.history != nil {
		if err := s.history.Save(context.WithoutCancel(ctx), run); err != nil {
			s.logger.Warn("audit.history.failed", "run", run.ID, "error", err)
		}
	}

	s.logger.Info("audit.batch.done",
		"run", run.ID,
		"records", run.Tally.Total(),
		"ok", run.Tally.OK,
		"error", run.Tally.Error,
		"failed_documents", run.Failed,
		"duration", run.FinishedAt.Sub(run.StartedAt))

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("batch interrupted: %w", err)
	}
	return run, nil
}

func (s *Service) appendRecords(doc *DocumentResult) {
	if s.sink == nil {
		return
	}
	for i, rec := range doc.Records {
		if err := s.sink.Append(rec); err != nil {
			s.logger.Error("audit.sink.failed", "name", doc.Name, "error", err)
			doc.Outcomes[i].Error = fmt.Sprintf("append failed: %v", err)
		}
	}
}

func (s *Service) publish(done, total int) {
	if s.progress == nil || total == 0 {
		return
	}
	s.progress.Publish(done * 100 / total)
}

func outcomeOf(name string, rec handover.Record, res rules.Result) Outcome {
	return Outcome{
		Name:   name,
		Status: strings.ToLower(string(rec.Status())),
		Type:   rec.Term(),
		Rule:   res.Rule,
		Reason: res.Reason,
	}
}
