package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// uniquePath returns dir/name, or dir/<stem>_<id><ext> when that file exists
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext))
}

// moveFile renames src to dst, copying across file systems when needed
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	in.Close()
	return os.Remove(src)
}

// archive moves path into the audited folder and returns its new location.
// Without an audited folder the document stays where it is.
func (s *Server) archive(path string) (string, error) {
	if s.auditedDir == "" {
		return path, nil
	}
	if err := os.MkdirAll(s.auditedDir, 0o750); err != nil {
		return "", fmt.Errorf("create audited folder: %w", err)
	}
	dst := uniquePath(s.auditedDir, filepath.Base(path))
	if err := moveFile(path, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", filepath.Base(path), err)
	}
	return dst, nil
}
