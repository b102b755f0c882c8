// Package export writes extraction results to spreadsheet files.
package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/xuri/excelize/v2"
)

const sheet = "Results"

var headers = []string{
	"Document",
	"Success",
	"Invoice Number",
	"Counterparty",
	"Amount",
	"Currency",
	"Issue Date",
	"Due Date",
	"Confidence",
	"Elapsed (s)",
	"Error",
}

// XLSX renders one row per result, in the order given.
func XLSX(results []models.ExtractionResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes the results workbook to w.
func WriteXLSX(w io.Writer, results []models.ExtractionResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", lastHeader, bold)

	for i, r := range results {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.Name)
		write(2, r.Success)
		if rec := r.Record; rec != nil {
			write(3, deref(rec.InvoiceNumber))
			write(4, deref(rec.Counterparty))
			if rec.Amount != nil {
				write(5, *rec.Amount)
			}
			write(6, deref(rec.Currency))
			write(7, deref(rec.IssueDate))
			write(8, deref(rec.DueDate))
			write(9, rec.Confidence)
		}
		write(10, r.Elapsed.Seconds())
		write(11, r.Error)
	}

	_ = f.SetColWidth(sheet, "A", "A", 32) // document
	_ = f.SetColWidth(sheet, "C", "D", 24)
	_ = f.SetColWidth(sheet, "G", "H", 14) // dates
	_ = f.SetColWidth(sheet, "K", "K", 60) // error

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
