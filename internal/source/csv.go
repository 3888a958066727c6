// Package source provides raw row suppliers for the time-series engine:
// delimited text with dialect sniffing and encoding normalization, and
// Excel workbooks.
package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	ierrors "timeslice/internal/errors"
	"timeslice/pkg/contracts/domain"
)

// sniffSampleSize bounds how much of the input is inspected for dialect
// detection.
const sniffSampleSize = 4096

// delimiterCandidates are tried in order when sniffing; ties go to the
// earlier candidate.
var delimiterCandidates = []rune{',', '\t', ';', '|'}

// CSVOptions configures a CSV source. The zero value sniffs the delimiter
// and header presence from the input.
type CSVOptions struct {
	// Delimiter forces the field separator; 0 means sniff.
	Delimiter rune
	// Header supplies column names when the input has no header row.
	Header []string
	// HasHeader forces header interpretation; nil means sniff.
	HasHeader *bool
	// Encoding is an IANA charset name; empty or "utf-8" reads the input
	// as-is, anything else is transcoded to UTF-8 first.
	Encoding string
}

// CSVSource supplies raw rows from delimited text
type CSVSource struct {
	reader  *csv.Reader
	columns []string
}

// NewCSV creates a CSV source over r. Header interpretation, delimiter
// resolution, and encoding normalization all happen here; constructing
// without a header row and without explicit column names is a
// configuration error.
func NewCSV(r io.Reader, opts CSVOptions) (*CSVSource, error) {
	if opts.Encoding != "" && !strings.EqualFold(opts.Encoding, "utf-8") {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, ierrors.Configf("unknown encoding %q: %v", opts.Encoding, err)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	br := bufio.NewReaderSize(r, sniffSampleSize*2)
	sample, err := br.Peek(sniffSampleSize)
	if err != nil && err != io.EOF && len(sample) == 0 {
		return nil, fmt.Errorf("failed to read input sample: %w", err)
	}

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = sniffDelimiter(string(sample))
	}

	hasHeader := sniffHeader(string(sample), delimiter)
	if opts.HasHeader != nil {
		hasHeader = *opts.HasHeader
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	columns := opts.Header
	if hasHeader {
		header, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read header row: %w", err)
		}
		if len(columns) == 0 {
			columns = header
		}
	}
	if len(columns) == 0 {
		return nil, ierrors.Configf("header is not specified")
	}

	return &CSVSource{reader: cr, columns: columns}, nil
}

// Columns returns the declared column names in order
func (s *CSVSource) Columns() []string {
	return s.columns
}

// Next returns the next raw row, or io.EOF at end of stream
func (s *CSVSource) Next() (domain.RawRow, error) {
	record, err := s.reader.Read()
	if err != nil {
		return nil, err
	}
	return domain.RawRow(record), nil
}

// sniffDelimiter picks the candidate that appears most consistently across
// the sampled lines, falling back to tab like the classic dialect default.
func sniffDelimiter(sample string) rune {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return '\t'
	}
	best := '\t'
	bestCount := 0
	for _, cand := range delimiterCandidates {
		count := strings.Count(lines[0], string(cand))
		if count == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if strings.Count(line, string(cand)) != count {
				consistent = false
				break
			}
		}
		if consistent && count > bestCount {
			best = cand
			bestCount = count
		}
	}
	return best
}

// sniffHeader guesses header presence: a first line with no numeric field
// followed by a line containing one is treated as a header row.
func sniffHeader(sample string, delimiter rune) bool {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return false
	}
	first := strings.Split(lines[0], string(delimiter))
	for _, field := range first {
		if isNumeric(field) {
			return false
		}
	}
	if len(lines) < 2 {
		return true
	}
	second := strings.Split(lines[1], string(delimiter))
	for _, field := range second {
		if isNumeric(field) {
			return true
		}
	}
	return false
}

// sampleLines returns the complete lines of the sample, dropping a
// trailing fragment that may have been cut mid-line by the sample bound.
func sampleLines(sample string) []string {
	lines := strings.Split(strings.ReplaceAll(sample, "\r\n", "\n"), "\n")
	if len(lines) > 1 && len(sample) >= sniffSampleSize {
		lines = lines[:len(lines)-1]
	}
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}
