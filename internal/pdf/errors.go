package pdf

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPath = errors.New("path cannot be empty")
	ErrNotPDF    = errors.New("file is not a PDF")
	ErrTooLarge  = errors.New("file too large")
	ErrNoText    = errors.New("no text content could be extracted from PDF")
)

// ExtractionError reports that the text of a source document could not be
// obtained. Op names the step that failed (stat, validate, open, extract).
type ExtractionError struct {
	Path string `json:"path"`
	Op   string `json:"op"`
	Err  error  `json:"-"`
}

// Error implements the error interface
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionError(path, op string, err error) error {
	return &ExtractionError{Path: path, Op: op, Err: err}
}
