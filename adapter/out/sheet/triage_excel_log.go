// Package sheet keeps the decision log as an Excel workbook the mailbox
// owner can open and work through.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"

	"github.com/xuri/excelize/v2"
)

const (
	DefaultPath      = "storage/leads.xlsx"
	DefaultSheetName = "Leads"

	// Excel rejects cells longer than this.
	maxCellChars = 32767
	headerFill   = "BDD7EE"
	bodyColumn   = "D"
)

// Headers is the fixed column layout.
var Headers = []string{
	"From",
	"Subject",
	"Date",
	"Body",
	"Lead Category",
	"Priority",
	"Owner Action",
	"Auto Reply",
	"Status",
}

var columnWidths = map[string]float64{
	"A": 40,
	"B": 30,
	"C": 50,
	"D": 80,
	"E": 25,
}

// ExcelLog appends decision rows to an xlsx workbook, creating the file and
// styled header on first use.
type ExcelLog struct {
	path  string
	sheet string
	mu    sync.Mutex
}

func NewExcelLog(path, sheetName string) *ExcelLog {
	if path == "" {
		path = DefaultPath
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &ExcelLog{path: path, sheet: sheetName}
}

// Path returns the workbook location.
func (l *ExcelLog) Path() string { return l.path }

func (l *ExcelLog) Append(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(l.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", l.sheet, err)
	}

	bodyStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}

	next := len(rows) + 1
	for _, rec := range records {
		cell, _ := excelize.CoordinatesToCellName(1, next)
		row := rowValues(rec)
		if err := f.SetSheetRow(l.sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", next, err)
		}
		bodyCell := fmt.Sprintf("%s%d", bodyColumn, next)
		if err := f.SetCellStyle(l.sheet, bodyCell, bodyCell, bodyStyle); err != nil {
			return err
		}
		next++
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(l.sheet, col, col, width); err != nil {
			return err
		}
	}

	if err := f.SaveAs(l.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", l.path, err)
	}

	logger.WithFields(map[string]any{
		"path": l.path,
		"rows": len(records),
	}).Info("[Excel] decision log updated")
	return nil
}

func (l *ExcelLog) Close() error { return nil }

// open loads the workbook, or creates it with the header row. A workbook
// without the target sheet gets the sheet added.
func (l *ExcelLog) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(l.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if dir := filepath.Dir(l.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), l.sheet); err != nil {
			f.Close()
			return nil, err
		}
		if err := l.writeHeader(f); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("open workbook %s: %w", l.path, err)
	}

	idx, err := f.GetSheetIndex(l.sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	if idx == -1 {
		if _, err := f.NewSheet(l.sheet); err != nil {
			f.Close()
			return nil, err
		}
		if err := l.writeHeader(f); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (l *ExcelLog) writeHeader(f *excelize.File) error {
	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(l.sheet, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(l.sheet, "A1", last, style); err != nil {
		return err
	}

	// Sticky header.
	return f.SetPanes(l.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func rowValues(rec domain.LogRecord) []interface{} {
	d := rec.Decision
	return []interface{}{
		d.Message.From,
		d.Message.Subject,
		d.Message.Date,
		truncateCell(d.Message.Body),
		string(d.Category()),
		string(d.Priority()),
		string(d.OwnerAction),
		truncateCell(d.AutoReply),
		string(rec.Status),
	}
}

func truncateCell(s string) string {
	r := []rune(s)
	if len(r) <= maxCellChars {
		return s
	}
	return string(r[:maxCellChars])
}

var _ out.DecisionLog = (*ExcelLog)(nil)
