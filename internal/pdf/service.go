package pdf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/a3tai/handover-auditor/internal/pdf/security"
)

// Service confines PDF access to one directory tree and orchestrates the
// reader and the folder search
type Service struct {
	maxFileSize   int64
	reader        *Reader
	search        *Search
	pathValidator *security.PathValidator
}

// NewService creates a PDF service rooted at configuredDirectory
func NewService(maxFileSize int64, configuredDirectory string, logger *slog.Logger) (*Service, error) {
	pathValidator, err := security.NewPathValidator(configuredDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	return &Service{
		maxFileSize:   maxFileSize,
		reader:        NewReader(maxFileSize, logger),
		search:        NewSearch(maxFileSize),
		pathValidator: pathValidator,
	}, nil
}

// Root returns the configured directory
func (s *Service) Root() string {
	return s.pathValidator.Root()
}

// MaxFileSize returns the per-file size limit in bytes
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Reader returns the unconfined reader. It serves files the application
// placed itself, such as uploads moved to the archive folder.
func (s *Service) Reader() *Reader {
	return s.reader
}

// Resolve turns path into an absolute path inside the configured directory.
// Relative paths are taken relative to it.
func (s *Service) Resolve(path string) (string, error) {
	resolved, err := s.pathValidator.NormalizePath(path)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	return resolved, nil
}

// TextOf extracts the text of a PDF inside the configured directory
func (s *Service) TextOf(ctx context.Context, path string) (string, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return "", extractionError(path, "stat", err)
	}
	return s.reader.TextOf(ctx, resolved)
}

// ListDirectory lists the PDFs of a directory inside the configured one. An
// empty directory means the configured directory itself.
func (s *Service) ListDirectory(directory string, recursive bool) (*DirectoryListing, error) {
	if directory == "" {
		directory = s.Root()
	}
	resolved, err := s.Resolve(directory)
	if err != nil {
		return nil, err
	}
	return s.search.ListDirectory(resolved, recursive)
}
