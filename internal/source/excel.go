package source

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	ierrors "timeslice/internal/errors"
	"timeslice/pkg/contracts/domain"
)

// ExcelOptions configures an Excel source
type ExcelOptions struct {
	// Sheet names the worksheet to read; empty means the first sheet.
	Sheet string
	// Header supplies column names when the sheet has no header row.
	Header []string
	// HasHeader treats the first row as column names. Defaults to true
	// when Header is empty.
	HasHeader *bool
}

// ExcelSource supplies raw rows from a worksheet, streaming row by row
type ExcelSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	columns []string
}

// NewExcel opens a workbook and positions the source at the first data row
func NewExcel(filePath string, opts ExcelOptions) (*ExcelSource, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	hasHeader := len(opts.Header) == 0
	if opts.HasHeader != nil {
		hasHeader = *opts.HasHeader
	}

	columns := opts.Header
	if hasHeader {
		if !rows.Next() {
			f.Close()
			return nil, ierrors.Configf("sheet %q is empty, header is not specified", sheet)
		}
		header, err := rows.Columns()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read header row: %w", err)
		}
		if len(columns) == 0 {
			columns = header
		}
	}
	if len(columns) == 0 {
		f.Close()
		return nil, ierrors.Configf("header is not specified")
	}

	return &ExcelSource{file: f, rows: rows, columns: columns}, nil
}

// Columns returns the declared column names in order
func (s *ExcelSource) Columns() []string {
	return s.columns
}

// Next returns the next raw row, or io.EOF once the sheet is exhausted
func (s *ExcelSource) Next() (domain.RawRow, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	record, err := s.rows.Columns()
	if err != nil {
		return nil, err
	}
	return domain.RawRow(record), nil
}

// Close releases the underlying workbook
func (s *ExcelSource) Close() error {
	if err := s.rows.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
