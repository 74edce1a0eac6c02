package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/handover-auditor/internal/pdf/pdftest"
)

func TestSearch_ListDirectory(t *testing.T) {
	dir := t.TempDir()
	pdftest.Write(t, filepath.Join(dir, "b.pdf"), []string{"B"})
	pdftest.Write(t, filepath.Join(dir, "a.PDF"), []string{"A"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.pdf"), nil, 0o644))

	sub := filepath.Join(dir, "archive")
	require.NoError(t, os.Mkdir(sub, 0o755))
	pdftest.Write(t, filepath.Join(sub, "c.pdf"), []string{"C"})

	s := NewSearch(1024 * 1024)

	listing, err := s.ListDirectory(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 2, listing.TotalCount)
	assert.Equal(t, []string{filepath.Join(dir, "a.PDF"), filepath.Join(dir, "b.pdf")}, listing.Paths())
	assert.Equal(t, []string{filepath.Join(dir, "empty.pdf")}, listing.Skipped)

	listing, err = s.ListDirectory(dir, true)
	require.NoError(t, err)
	assert.Equal(t, 3, listing.TotalCount)
}

func TestSearch_ListDirectoryErrors(t *testing.T) {
	s := NewSearch(1024)

	_, err := s.ListDirectory("", false)
	assert.Error(t, err)

	_, err = s.ListDirectory(filepath.Join(t.TempDir(), "missing"), false)
	assert.ErrorContains(t, err, "does not exist")

	file := filepath.Join(t.TempDir(), "x.pdf")
	pdftest.Write(t, file, []string{"x"})
	_, err = s.ListDirectory(file, false)
	assert.ErrorContains(t, err, "not a directory")

	listing, err := s.ListDirectory(t.TempDir(), false)
	assert.ErrorIs(t, err, ErrNoPDFs)
	require.NotNil(t, listing)
	assert.Zero(t, listing.TotalCount)
}
