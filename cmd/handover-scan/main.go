package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/pflag"

	"github.com/a3tai/handover-auditor/internal/handover"
	"github.com/a3tai/handover-auditor/internal/pdf"
	"github.com/a3tai/handover-auditor/internal/rules"
)

// options are the command line settings of one invocation
type options struct {
	diagnostic bool
	format     string
	rulesFile  string
	maxSize    int64
}

// ScanResult is what the tool reports for one PDF
type ScanResult struct {
	FilePath string            `json:"file_path"`
	Success  bool              `json:"success"`
	Anchors  *handover.Anchors `json:"anchors,omitempty"`
	Spans    []handover.Span   `json:"spans,omitempty"`
	Coverage int               `json:"coverage,omitempty"`
	Chars    int               `json:"chars,omitempty"`
	Records  []ScannedRecord   `json:"records,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ScannedRecord pairs an extracted record with its validation outcome
type ScannedRecord struct {
	Fields map[string]string `json:"fields"`
	Result rules.Result      `json:"result"`
}

func main() {
	flags := pflag.NewFlagSet("handover-scan", pflag.ContinueOnError)
	opts := options{}
	flags.BoolVar(&opts.diagnostic, "diagnostic", false, "Show anchors and segment spans")
	flags.StringVar(&opts.format, "format", "text", "Output format: text, json")
	flags.StringVar(&opts.rulesFile, "rules", "", "YAML rule policy (defaults apply when empty)")
	flags.Int64Var(&opts.maxSize, "maxfilesize", 100*1024*1024, "Maximum PDF file size in bytes")
	help := flags.BoolP("help", "h", false, "Show help message")
	flags.Usage = func() { printHelp(flags) }

	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if *help {
		printHelp(flags)
		return
	}
	if flags.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one PDF file or directory is required\n\n")
		printHelp(flags)
		os.Exit(1)
	}

	if err := run(context.Background(), opts, flags.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp(flags *pflag.FlagSet) {
	fmt.Println("handover-scan - classify and validate equipment handover PDFs without recording them")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  handover-scan [OPTIONS] <pdf_or_directory>...")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Print(flags.FlagUsages())
	fmt.Println()
	fmt.Println("The hostname rule runs without a registry: it only checks that a hostname is present.")
}

func run(ctx context.Context, opts options, args []string, out io.Writer) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unsupported output format: %s", opts.format)
	}

	policy, err := rules.LoadPolicy(opts.rulesFile)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator, err := rules.NewValidator(policy, nil, logger)
	if err != nil {
		return err
	}

	paths, err := collect(args)
	if err != nil {
		return err
	}

	reader := pdf.NewReader(opts.maxSize, logger)
	classifier := handover.NewClassifier(nil, nil)

	results := make([]*ScanResult, 0, len(paths))
	for _, p := range paths {
		results = append(results, scan(ctx, reader, classifier, validator, p, opts.diagnostic))
	}

	if opts.format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}
	for _, r := range results {
		writeText(out, r)
	}
	return nil
}

// collect expands directories into their PDFs, sorted by name
func collect(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("file not found: %s", arg)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && pdf.IsPDFName(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

func scan(ctx context.Context, reader *pdf.Reader, classifier *handover.Classifier, validator *rules.Validator, path string, diagnostic bool) *ScanResult {
	result := &ScanResult{FilePath: path}

	text, err := reader.TextOf(ctx, path)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true

	records, spans := classifier.ClassifySpans(text)
	if diagnostic {
		anchors := handover.Scan(text)
		result.Anchors = &anchors
		result.Spans = spans
		result.Coverage = handover.Coverage(spans)
		result.Chars = len(text)
	}

	for _, rec := range records {
		rec[handover.FieldName] = filepath.Base(path)
		res := validator.Validate(ctx, rec)
		fields := make(map[string]string, len(rec))
		for f := range rec {
			fields[string(f)] = rec.String(f)
		}
		result.Records = append(result.Records, ScannedRecord{Fields: fields, Result: res})
	}
	return result
}

func writeText(out io.Writer, r *ScanResult) {
	fmt.Fprintf(out, "%s\n", r.FilePath)
	if !r.Success {
		fmt.Fprintf(out, "  FAILED: %s\n\n", r.Error)
		return
	}

	if r.Anchors != nil {
		if a := r.Anchors.Concession; a != nil {
			fmt.Fprintf(out, "  anchor CONCESSION at %d\n", a.Start)
		}
		if a := r.Anchors.Return; a != nil {
			fmt.Fprintf(out, "  anchor RETURN at %d\n", a.Start)
		}
		for _, a := range r.Anchors.RAT {
			fmt.Fprintf(out, "  anchor RAT at %d\n", a.Start)
		}
		for _, sp := range r.Spans {
			fmt.Fprintf(out, "  span %s [%d, %d) from %s\n", sp.Type, sp.Start, sp.End, sp.Origin)
		}
		fmt.Fprintf(out, "  coverage %d of %d chars\n", r.Coverage, r.Chars)
	}

	for i, rec := range r.Records {
		term := handover.DocType(rec.Fields[string(handover.FieldTerm)])
		fmt.Fprintf(out, "  %d. %s (%s)", i+1, term.DisplayName(), term)
		if rec.Result.OK {
			fmt.Fprintf(out, " OK\n")
		} else {
			fmt.Fprintf(out, " ERROR %s: %s\n", rec.Result.Rule, rec.Result.Reason)
		}
	}
	fmt.Fprintln(out)
}
