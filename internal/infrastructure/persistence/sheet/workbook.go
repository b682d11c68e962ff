// Package sheet stores documents and the audit log in an xlsx workbook, the
// register format procurement teams already keep by hand. Columns are
// addressed by their header name so reordering columns in a spreadsheet
// application does not break the store.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names
const (
	DocumentsSheet = "Documents"
	AuditSheet     = "Audit Log"
)

const headerRow = 1

// Workbook is one xlsx file shared by the document and audit stores.
// Every write is saved to disk before the call returns.
type Workbook struct {
	mu      sync.Mutex
	path    string
	file    *excelize.File
	columns map[string]map[string]int
	logger  *zap.Logger
}

// Open loads path, or creates it with empty sheets when it does not exist
func Open(path string, logger *zap.Logger) (*Workbook, error) {
	var f *excelize.File
	created := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		created = true
	} else {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
	}

	w := &Workbook{
		path:    path,
		file:    f,
		columns: make(map[string]map[string]int),
		logger:  logger,
	}

	if err := w.ensureSheet(DocumentsSheet, documentHeaders()); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.ensureSheet(AuditSheet, auditHeaders()); err != nil {
		_ = f.Close()
		return nil, err
	}
	if created {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	if err := w.save(); err != nil {
		_ = f.Close()
		return nil, err
	}

	logger.Info("Workbook opened", zap.String("path", path))
	return w, nil
}

// ensureSheet creates the sheet if needed and appends any missing headers
func (w *Workbook) ensureSheet(sheet string, headers []string) error {
	idx, err := w.file.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("failed to look up sheet %s: %w", sheet, err)
	}
	if idx < 0 {
		if _, err := w.file.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	columns := make(map[string]int)
	next := 1
	if len(rows) > 0 {
		for i, h := range rows[0] {
			if h = strings.TrimSpace(h); h != "" {
				columns[h] = i + 1
			}
		}
		next = len(rows[0]) + 1
	}
	for _, h := range headers {
		if _, ok := columns[h]; ok {
			continue
		}
		if err := w.setCell(sheet, next, headerRow, h); err != nil {
			return err
		}
		columns[h] = next
		next++
	}

	w.columns[sheet] = columns
	return nil
}

func (w *Workbook) setCell(sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("invalid cell %d,%d: %w", col, row, err)
	}
	if err := w.file.SetCellStr(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// rows returns the data rows of sheet as header-keyed records. The row
// number of each record is its sheet row.
func (w *Workbook) rows(sheet string) ([]record, error) {
	raw, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	columns := w.columns[sheet]
	var out []record
	for i := headerRow; i < len(raw); i++ {
		values := make(map[string]string, len(columns))
		empty := true
		for name, col := range columns {
			if col-1 < len(raw[i]) {
				v := raw[i][col-1]
				values[name] = v
				if v != "" {
					empty = false
				}
			}
		}
		if empty {
			continue
		}
		out = append(out, record{row: i + 1, values: values})
	}
	return out, nil
}

// lastRow returns the number of the last used sheet row
func (w *Workbook) lastRow(sheet string) (int, error) {
	raw, err := w.file.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(raw) < headerRow {
		return headerRow, nil
	}
	return len(raw), nil
}

// writeRow writes the named values into row, leaving unnamed columns alone
func (w *Workbook) writeRow(sheet string, row int, values map[string]string) error {
	columns := w.columns[sheet]
	for name, v := range values {
		col, ok := columns[name]
		if !ok {
			return fmt.Errorf("sheet %s has no column %q", sheet, name)
		}
		if err := w.setCell(sheet, col, row, v); err != nil {
			return err
		}
	}
	return nil
}

// commitRow writes values into row and saves the workbook. When either step
// fails the previous cell values are written back, so the in-memory workbook
// never holds a row the file on disk does not.
func (w *Workbook) commitRow(sheet string, row int, values map[string]string) error {
	columns := w.columns[sheet]
	previous := make(map[string]string, len(values))
	for name := range values {
		col, ok := columns[name]
		if !ok {
			return fmt.Errorf("sheet %s has no column %q", sheet, name)
		}
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return fmt.Errorf("invalid cell %d,%d: %w", col, row, err)
		}
		v, err := w.file.GetCellValue(sheet, cell)
		if err != nil {
			return fmt.Errorf("failed to read %s!%s: %w", sheet, cell, err)
		}
		previous[name] = v
	}

	err := w.writeRow(sheet, row, values)
	if err == nil {
		err = w.save()
	}
	if err != nil {
		if rerr := w.writeRow(sheet, row, previous); rerr != nil {
			w.logger.Error("Failed to restore row after failed write",
				zap.String("sheet", sheet), zap.Int("row", row), zap.Error(rerr))
		}
		return err
	}
	return nil
}

func (w *Workbook) save() error {
	if err := w.file.SaveAs(w.path); err != nil {
		w.logger.Error("Failed to save workbook", zap.String("path", w.path), zap.Error(err))
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Close releases the workbook
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

type record struct {
	row    int
	values map[string]string
}

func (r record) get(name string) string {
	return strings.TrimSpace(r.values[name])
}

// Cells hold RFC 3339 timestamps; plain dates typed by hand are accepted too.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
