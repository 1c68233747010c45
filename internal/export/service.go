// Package export renders the processed-paper ledger as an XLSX workbook for
// manual review.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/m-okabe/papersync/internal/ledger"
)

// HistorySource is the slice of ledger behavior the exporter depends on.
type HistorySource interface {
	History(ctx context.Context) ([]ledger.Entry, error)
	Stats(ctx context.Context) (map[string]int, error)
}

type Service struct {
	source HistorySource
	logger *slog.Logger
}

func NewService(source HistorySource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// LedgerXLSX returns an XLSX workbook (as bytes) listing every ledger entry,
// completed and failed, ordered by processing time.
func (s *Service) LedgerXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	entries, err := s.source.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("query ledger history: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Processed Papers"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defaultIndex, _ := f.GetSheetIndex("Sheet1"); defaultIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Drive File ID",
		"File Name",
		"Processed At",
		"Status",
		"Notion Page ID",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, e := range entries {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, e.FileID)
		write(2, e.FileName)
		write(3, e.ProcessedAt.UTC().Format(time.RFC3339))
		write(4, e.Status)
		write(5, e.NotionPageID)
		write(6, e.ErrorMessage)
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}

	s.logger.Info("export.ledger.ok",
		"entries", len(entries),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
