// Package export renders validation runs as XLSX workbooks.
package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/docuflow/invoice-extractor/internal/entity"
)

// Service produces XLSX bytes for validation reports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ValidationReportXLSX returns a workbook with one row per validation
// record followed by a summary block.
func (s *Service) ValidationReportXLSX(records []entity.ValidationRecord, summary *entity.ValidationSummary) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Validation"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Invoice Number",
		"Valid",
		"Subtotal (Master)",
		"Subtotal (Processed)",
		"Tax (Master)",
		"Tax (Processed)",
		"Total (Master)",
		"Total (Processed)",
		"Line Items Compared",
		"Discrepancies",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range records {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.InvoiceNumber)
		write(2, r.IsValid)

		col := 3
		for _, field := range []string{"subtotal", "tax", "total"} {
			if cmp, ok := r.Totals[field]; ok {
				write(col, fmt.Sprintf("%.2f", cmp.Master))
				write(col+1, fmt.Sprintf("%.2f", cmp.Processed))
			} else {
				write(col, "")
				write(col+1, "")
			}
			col += 2
		}

		write(9, len(r.LineItems))
		write(10, truncate(strings.Join(r.Discrepancies, "; "), 200))
		row++
	}

	// summary block under the table
	row++
	summaryRows := [][2]any{
		{"Total invoices", summary.TotalInvoices},
		{"Valid invoices", summary.ValidInvoices},
		{"Invalid invoices", summary.InvalidInvoices},
		{"With discrepancies", summary.WithDiscrepancies},
	}
	for _, sr := range summaryRows {
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheet, cellA, sr[0])
		_ = f.SetCellValue(sheet, cellB, sr[1])
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 18) // invoice number
	_ = f.SetColWidth(sheet, "B", "B", 8)  // valid flag
	_ = f.SetColWidth(sheet, "C", "H", 16) // amounts
	_ = f.SetColWidth(sheet, "I", "I", 18) // line item count
	_ = f.SetColWidth(sheet, "J", "J", 60) // discrepancies

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.validation.ok",
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
