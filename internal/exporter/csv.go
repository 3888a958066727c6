// Package exporter writes transformed row streams to CSV or JSON lines.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"timeslice/pkg/contracts/domain"
)

// CSVWriter streams resolved rows to a CSV file
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Columns   []string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// RowIterator is the stream the writer drains: Next advances, Row returns
// the current row, Err reports what stopped the stream.
type RowIterator interface {
	Next() bool
	Row() *domain.Row
	Err() error
}

// WriteFile drains rows into a CSV file at the given path, creating parent
// directories as needed. It returns the number of rows written.
func (w *CSVWriter) WriteFile(filePath string, rows RowIterator, options WriteOptions) (int, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	w.logger.Info("Writing CSV file", slog.String("file_path", filePath))

	return w.Write(file, rows, options)
}

// Write drains rows into out as CSV
func (w *CSVWriter) Write(out io.Writer, rows RowIterator, options WriteOptions) (int, error) {
	if options.BOMPrefix {
		if _, err := out.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return 0, fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(out)
	defer writer.Flush()

	if len(options.Columns) > 0 {
		if err := writer.Write(options.Columns); err != nil {
			return 0, fmt.Errorf("failed to write headers: %w", err)
		}
	}

	count := 0
	for rows.Next() {
		record, err := formatRecord(rows.Row(), options.Columns)
		if err != nil {
			return count, err
		}
		if err := writer.Write(record); err != nil {
			return count, fmt.Errorf("failed to write record %d: %w", count, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("row stream failed: %w", err)
	}
	writer.Flush()
	return count, writer.Error()
}

// formatRecord renders one row in the given column order. Columns are
// taken from the row itself when no order was configured.
func formatRecord(row *domain.Row, columns []string) ([]string, error) {
	if len(columns) == 0 {
		columns = row.Columns()
	}
	record := make([]string, len(columns))
	for i, col := range columns {
		v, ok := row.Get(col)
		if !ok {
			return nil, fmt.Errorf("row is missing column %q", col)
		}
		record[i] = formatValue(v)
	}
	return record, nil
}
