package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/ibansync/internal/reconcile"
)

// SheetName is the only sheet of a run report.
const SheetName = "Entries"

// Headers are the report columns, in order.
var Headers = []string{
	"file",
	"mndtid",
	"endtoendid",
	"iban_old",
	"bic_old",
	"iban_new",
	"bic_new",
	"customer_id",
	"outcome",
	"error",
}

// Service renders entry outcomes as an XLSX workbook.
type Service struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, now: time.Now}
}

// BuildXLSX returns the workbook bytes for outcomes, one row per entry.
func (s *Service) BuildXLSX(outcomes []reconcile.Outcome) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("report.xlsx.close_failed", "error", err)
		}
	}()
	// Rename the default sheet so the workbook holds exactly one.
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, o := range outcomes {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		write(1, filepath.Base(o.File))
		write(2, o.Entry.MandateID)
		write(3, o.Entry.EndToEndID)
		write(4, o.Entry.OldIBAN)
		write(5, o.Entry.OldBIC)
		write(6, o.Entry.NewIBAN)
		write(7, o.Entry.NewBIC)
		if o.CustomerID != 0 {
			write(8, o.CustomerID)
		} else {
			write(8, "")
		}
		write(9, string(o.Result))
		if o.Err != nil {
			write(10, o.Err.Error())
		} else {
			write(10, "")
		}
		row++
	}

	_ = f.SetColWidth(SheetName, "A", "A", 32) // file
	_ = f.SetColWidth(SheetName, "B", "C", 24) // ids
	_ = f.SetColWidth(SheetName, "D", "G", 22) // accounts
	_ = f.SetColWidth(SheetName, "H", "I", 14)
	_ = f.SetColWidth(SheetName, "J", "J", 60) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("report.xlsx.ok", "rows", len(outcomes), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// Save writes the workbook for outcomes into dir and returns its path.
// The file name carries the run time and id so reports of separate runs never collide.
func (s *Service) Save(dir, runID string, outcomes []reconcile.Outcome) (string, error) {
	b, err := s.BuildXLSX(outcomes)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("ibansync-%s", s.now().UTC().Format("20060102T150405Z"))
	if runID != "" {
		name += "-" + runID
	}
	p := filepath.Join(dir, name+".xlsx")
	if err := os.WriteFile(p, b, 0o644); err != nil {
		s.logger.Error("report.save.failed", "path", p, "error", err)
		return "", fmt.Errorf("write report: %w", err)
	}
	s.logger.Info("report.save.ok", "path", p, "rows", len(outcomes))
	return p, nil
}
