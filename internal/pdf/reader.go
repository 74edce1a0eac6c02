package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Reader extracts the text layer of a PDF. It reads rows with ledongthuc/pdf
// and falls back to decoding the content streams with pdfcpu when that
// yields nothing.
type Reader struct {
	validator   *Validator
	maxTextSize int
	logger      *slog.Logger
}

// NewReader creates a new PDF reader with the specified constraints
func NewReader(maxFileSize int64, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		validator:   NewValidator(maxFileSize),
		maxTextSize: 10 * 1024 * 1024, // 10MB text limit
		logger:      logger,
	}
}

// TextOf returns the text of every page, pages separated by a blank line.
// Any failure is an *ExtractionError; a PDF without a text layer fails with
// ErrNoText.
func (r *Reader) TextOf(ctx context.Context, path string) (string, error) {
	if _, err := r.validator.CheckFile(path); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", extractionError(path, "extract", err)
	}

	text, err := r.readRows(path)
	if err != nil {
		r.logger.Debug("pdf.rows.failed", "path", path, "error", err)
	}
	if strings.TrimSpace(text) == "" {
		if err := ctx.Err(); err != nil {
			return "", extractionError(path, "extract", err)
		}
		fallback, ferr := readStreams(path, r.maxTextSize)
		if ferr != nil {
			r.logger.Debug("pdf.streams.failed", "path", path, "error", ferr)
			if err == nil {
				err = ferr
			}
		}
		text = fallback
	}

	if strings.TrimSpace(text) == "" {
		if err != nil {
			return "", extractionError(path, "open", err)
		}
		// a damaged file is reported as such rather than as a scan
		if verr := r.validator.ValidateStructure(path); verr != nil {
			return "", verr
		}
		return "", extractionError(path, "extract", ErrNoText)
	}
	return text, nil
}

// readRows opens the file with ledongthuc/pdf and rebuilds each page line by
// line. The library panics on some malformed files; that is reported as an
// error.
func (r *Reader) readRows(path string) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pdf reader panic: %v", p)
		}
	}()

	f, pdfReader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var builder strings.Builder
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content := pageText(page)
		if builder.Len()+len(content) > r.maxTextSize {
			remaining := r.maxTextSize - builder.Len()
			if remaining > 0 {
				builder.WriteString(content[:remaining])
			}
			break
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(content)
	}
	return builder.String(), nil
}

// pageText prefers row-ordered text, which keeps "label: value" pairs on one
// line, and falls back to the plain text stream of the page.
func pageText(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if line := joinRow(row.Content); strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}

	plain, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return plain
}

// joinRow concatenates the glyph runs of a row, inserting a space where the
// horizontal gap is wider than a quarter of the font size.
func joinRow(words pdf.TextHorizontal) string {
	var b strings.Builder
	var prevEnd float64
	for i, w := range words {
		if i > 0 && w.X-prevEnd > w.FontSize*0.25 && !strings.HasPrefix(w.S, " ") && !strings.HasSuffix(b.String(), " ") {
			b.WriteByte(' ')
		}
		b.WriteString(w.S)
		prevEnd = w.X + w.W
	}
	return strings.TrimRight(b.String(), " ")
}
