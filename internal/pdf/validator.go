package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Validator checks that a path points at a readable PDF within the size limit
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// CheckFile validates the file on disk without parsing it. Failures are
// returned as *ExtractionError.
func (v *Validator) CheckFile(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, extractionError(path, "stat", ErrEmptyPath)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, extractionError(path, "stat", err)
	}
	if err := v.CheckFileInfo(path, info); err != nil {
		return nil, extractionError(path, "validate", err)
	}
	return info, nil
}

// CheckFileInfo performs the cheap checks on file info only
func (v *Validator) CheckFileInfo(path string, info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if !IsPDFName(path) {
		return ErrNotPDF
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}
	if v.maxFileSize > 0 && info.Size() > v.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrTooLarge, info.Size(), v.maxFileSize)
	}
	return nil
}

// ValidateStructure runs pdfcpu's relaxed validation over the file. It is
// used to tell a damaged file apart from a scan with no text layer.
func (v *Validator) ValidateStructure(path string) error {
	if _, err := v.CheckFile(path); err != nil {
		return err
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return extractionError(path, "validate", err)
	}
	return nil
}

// IsPDFName reports whether the file name has a .pdf extension
func IsPDFName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
