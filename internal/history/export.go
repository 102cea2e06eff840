package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/xuri/excelize/v2"
)

const sheet = "History"

// Lister reads an owner's recent jobs.
type Lister interface {
	ListRecent(ctx context.Context, ownerID string, since time.Time, limit int) ([]domain.HistoryEntry, error)
}

// Exporter renders job history as an XLSX workbook.
type Exporter struct {
	jobs   Lister
	window time.Duration
	limit  int
	logger *slog.Logger
}

// NewExporter creates an Exporter covering the last window, at most limit rows
func NewExporter(jobs Lister, window time.Duration, limit int, logger *slog.Logger) *Exporter {
	return &Exporter{jobs: jobs, window: window, limit: limit, logger: logger}
}

// ExportXLSX returns the owner's history workbook as bytes.
func (e *Exporter) ExportXLSX(ctx context.Context, ownerID string) ([]byte, error) {
	start := time.Now()

	entries, err := e.jobs.ListRecent(ctx, ownerID, start.Add(-e.window), e.limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	buf, err := Workbook(entries)
	if err != nil {
		return nil, err
	}

	e.logger.Info("export.xlsx.ok",
		slog.String("owner_id", ownerID),
		slog.Int("rows", len(entries)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return buf, nil
}

// Workbook lays entries out one per row under a header row.
func Workbook(entries []domain.HistoryEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{"Job ID", "Project", "Template", "Status", "Created", "Completed", "PDF"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, entry := range entries {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, entry.JobID)
		write(2, entry.ProjectName)
		write(3, entry.TemplateName)
		write(4, entry.Status)
		write(5, entry.CreatedAt.UTC().Format(time.RFC3339))
		if entry.CompletedAt != nil {
			write(6, entry.CompletedAt.UTC().Format(time.RFC3339))
		}
		write(7, entry.ArtifactURL)
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "C", 24)
	_ = f.SetColWidth(sheet, "D", "D", 12)
	_ = f.SetColWidth(sheet, "E", "F", 22)
	_ = f.SetColWidth(sheet, "G", "G", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
