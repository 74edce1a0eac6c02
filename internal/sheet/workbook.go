// Package sheet keeps the audit results workbook: one row per validated
// record under a fixed header.
package sheet

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/a3tai/handover-auditor/internal/handover"
)

// SheetName is the worksheet rows are written to
const SheetName = "Auditoria"

// ErrHeaderMismatch is returned when an existing workbook has another header
var ErrHeaderMismatch = errors.New("workbook header does not match the audit columns")

// Workbook appends records to an XLSX file. Appends are serialized; the file
// is reopened for each append so edits made between runs are kept.
type Workbook struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// New returns a workbook bound to path. Nothing is written until
// EnsureExists or Append is called.
func New(path string, logger *slog.Logger) *Workbook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workbook{path: path, logger: logger}
}

// Path returns the workbook location
func (w *Workbook) Path() string {
	return w.path
}

// Headers returns the header row in column order
func Headers() []string {
	out := make([]string, len(handover.Columns))
	for i, c := range handover.Columns {
		out[i] = c.Header
	}
	return out
}

// EnsureExists creates the workbook with its formatted header if the file is
// missing. An existing file must carry the same header.
func (w *Workbook) EnsureExists() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ensure()
}

func (w *Workbook) ensure() error {
	if _, err := os.Stat(w.path); err == nil {
		return w.checkHeader()
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot access workbook: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create workbook directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headers := Headers()
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &row); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := format(f, len(headers)); err != nil {
		return err
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	w.logger.Info("sheet.created", "path", w.path, "columns", len(headers))
	return nil
}

func (w *Workbook) checkHeader() error {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHeaderMismatch, err)
	}
	headers := Headers()
	if len(rows) == 0 || len(rows[0]) != len(headers) {
		return ErrHeaderMismatch
	}
	for i, h := range headers {
		if rows[0][i] != h {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrHeaderMismatch, i+1, rows[0][i], h)
		}
	}
	return nil
}

// Append writes rec as the next row, creating the workbook if needed
func (w *Workbook) Append(rec handover.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensure(); err != nil {
		return err
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	next := len(rows) + 1

	values := make([]any, len(handover.Columns))
	for i, c := range handover.Columns {
		values[i] = rec.String(c.Field)
	}
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := markStatus(f, next, rec.Status()); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	w.logger.Debug("sheet.append.ok", "name", rec.String(handover.FieldName), "row", next)
	return nil
}

// Rows returns the data rows, header excluded
func (w *Workbook) Rows() ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

func format(f *excelize.File, columns int) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#1F4E78"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(columns)
	if err := f.SetCellStyle(SheetName, "A1", last+"1", style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	// Widen a few columns
	_ = f.SetColWidth(SheetName, "A", "A", 40) // file name
	_ = f.SetColWidth(SheetName, "B", "D", 14) // term, status, signed
	_ = f.SetColWidth(SheetName, "E", "N", 20) // equipment
	_ = f.SetColWidth(SheetName, "O", last, 16)

	return f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// markStatus colours the STATUS TERMO cell of a row
func markStatus(f *excelize.File, row int, status handover.Status) error {
	color := "#C00000"
	if status == handover.StatusOK {
		color = "#007A33"
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Color: color}})
	if err != nil {
		return fmt.Errorf("status style: %w", err)
	}
	col, _ := excelize.ColumnNumberToName(statusColumn())
	cell := fmt.Sprintf("%s%d", col, row)
	return f.SetCellStyle(SheetName, cell, cell, style)
}

func statusColumn() int {
	for i, c := range handover.Columns {
		if c.Field == handover.FieldStatus {
			return i + 1
		}
	}
	return 1
}
