package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoPDFs is returned when a folder holds no PDF files
var ErrNoPDFs = errors.New("no PDF files found in directory")

// Search discovers the PDF files of a folder
type Search struct {
	validator *Validator
}

// NewSearch creates a new PDF search handler with the specified constraints
func NewSearch(maxFileSize int64) *Search {
	return &Search{
		validator: NewValidator(maxFileSize),
	}
}

// ListDirectory returns the PDF files directly inside directory, sorted by
// name so batch order is reproducible. Sub-folders are not descended into
// unless recursive is set. Files failing the cheap checks are reported in
// Skipped.
func (s *Search) ListDirectory(directory string, recursive bool) (*DirectoryListing, error) {
	if strings.TrimSpace(directory) == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	absDirectory, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory path: %w", err)
	}
	info, err := os.Stat(absDirectory)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", directory)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", directory)
	}

	listing := &DirectoryListing{Directory: absDirectory}
	err = filepath.WalkDir(absDirectory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Continue walking even if we encounter an error with a specific file
			return nil //nolint:nilerr
		}
		if d.IsDir() {
			if path != absDirectory && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsPDFName(d.Name()) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			listing.Skipped = append(listing.Skipped, path)
			return nil //nolint:nilerr
		}
		if err := s.validator.CheckFileInfo(path, fi); err != nil {
			listing.Skipped = append(listing.Skipped, path)
			return nil //nolint:nilerr
		}

		listing.Files = append(listing.Files, FileInfo{
			Path:         path,
			Name:         fi.Name(),
			Size:         fi.Size(),
			ModifiedTime: fi.ModTime().Format("2006-01-02 15:04:05"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	sort.Slice(listing.Files, func(i, j int) bool { return listing.Files[i].Path < listing.Files[j].Path })
	listing.TotalCount = len(listing.Files)
	if listing.TotalCount == 0 {
		return listing, fmt.Errorf("%w: %s", ErrNoPDFs, directory)
	}
	return listing, nil
}

// Paths returns the file paths of a listing in order
func (l *DirectoryListing) Paths() []string {
	out := make([]string, len(l.Files))
	for i, f := range l.Files {
		out[i] = f.Path
	}
	return out
}
