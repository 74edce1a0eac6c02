// Package security keeps file access inside the configured folders.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the configured directory
var ErrOutsideRoot = errors.New("path is outside configured directory")

// PathValidator confines paths to one root directory
type PathValidator struct {
	root string
}

// NewPathValidator creates a new path validator for the given directory. The
// directory does not need to exist yet.
func NewPathValidator(root string) (*PathValidator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute configured directory
func (v *PathValidator) Root() string {
	return v.root
}

// ValidatePath checks that path, after cleaning and symlink resolution,
// lies inside the root. The root itself is accepted.
func (v *PathValidator) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	abs = filepath.Clean(abs)
	if !within(abs, v.root) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	// A symlink inside the root may still point outside of it
	realRoot := v.root
	if resolved, err := filepath.EvalSymlinks(v.root); err == nil {
		realRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && !within(resolved, realRoot) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return nil
}

// Resolve maps a bare file name, as received from a URL, to a path inside
// the root. Names with separators or parent references are rejected.
func (v *PathValidator) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	path := filepath.Join(v.root, name)
	if err := v.ValidatePath(path); err != nil {
		return "", err
	}
	return path, nil
}

// NormalizePath returns an absolute path inside the root. Relative paths are
// taken relative to the root.
func (v *PathValidator) NormalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	if err := v.ValidatePath(path); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

// ValidateDirectory checks that dir is inside the root and is a directory
func (v *PathValidator) ValidateDirectory(dir string) error {
	if err := v.ValidatePath(dir); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	return nil
}

func within(path, root string) bool {
	if path == root {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}
