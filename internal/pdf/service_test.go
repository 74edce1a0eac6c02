package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/handover-auditor/internal/pdf/pdftest"
	"github.com/a3tai/handover-auditor/internal/pdf/security"
)

func TestNewService(t *testing.T) {
	_, err := NewService(1024, "", nil)
	assert.Error(t, err)

	dir := t.TempDir()
	s, err := NewService(2048, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Root())
	assert.Equal(t, int64(2048), s.MaxFileSize())
	assert.NotNil(t, s.Reader())
}

func TestService_TextOf(t *testing.T) {
	dir := t.TempDir()
	pdftest.Write(t, filepath.Join(dir, "termo.pdf"), []string{"TERMO DE DEVOLUCAO", "Serial: XYZ9876"})

	outside := filepath.Join(t.TempDir(), "outside.pdf")
	pdftest.Write(t, outside, []string{"TERMO DE CONCESSAO"})

	s, err := NewService(1024*1024, dir, nil)
	require.NoError(t, err)

	text, err := s.TextOf(context.Background(), "termo.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "Serial: XYZ9876")

	text, err = s.TextOf(context.Background(), filepath.Join(dir, "termo.pdf"))
	require.NoError(t, err)
	assert.Contains(t, text, "TERMO DE DEVOLUCAO")

	_, err = s.TextOf(context.Background(), outside)
	require.Error(t, err)
	assert.ErrorIs(t, err, security.ErrOutsideRoot)
	var extErr *ExtractionError
	assert.True(t, errors.As(err, &extErr))

	_, err = s.TextOf(context.Background(), "../outside.pdf")
	assert.ErrorIs(t, err, security.ErrOutsideRoot)
}

func TestService_ListDirectory(t *testing.T) {
	dir := t.TempDir()
	pdftest.Write(t, filepath.Join(dir, "a.pdf"), []string{"A"})
	sub := filepath.Join(dir, "lote")
	require.NoError(t, os.Mkdir(sub, 0o755))
	pdftest.Write(t, filepath.Join(sub, "b.pdf"), []string{"B"})

	s, err := NewService(1024*1024, dir, nil)
	require.NoError(t, err)

	listing, err := s.ListDirectory("", false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.pdf")}, listing.Paths())

	listing, err = s.ListDirectory("lote", false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(sub, "b.pdf")}, listing.Paths())

	listing, err = s.ListDirectory("", true)
	require.NoError(t, err)
	assert.Equal(t, 2, listing.TotalCount)

	_, err = s.ListDirectory(t.TempDir(), false)
	assert.ErrorIs(t, err, security.ErrOutsideRoot)
}
