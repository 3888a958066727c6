package source

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "timeslice/internal/errors"
	"timeslice/pkg/contracts/domain"
)

func readAll(t *testing.T, s *CSVSource) []domain.RawRow {
	t.Helper()
	var rows []domain.RawRow
	for {
		row, err := s.Next()
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestCSVSniffsCommaAndHeader(t *testing.T) {
	input := "col1,col2\n10,12\n11,15\n"
	s, err := NewCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"col1", "col2"}, s.Columns())
	rows := readAll(t, s)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.RawRow{"10", "12"}, rows[0])
	assert.Equal(t, domain.RawRow{"11", "15"}, rows[1])
}

func TestCSVSniffsTabDelimiter(t *testing.T) {
	input := "time\tvalue\n1\t100\n2\t200\n"
	s, err := NewCSV(strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "value"}, s.Columns())
	rows := readAll(t, s)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.RawRow{"1", "100"}, rows[0])
}

func TestCSVExplicitHeaderWithoutHeaderRow(t *testing.T) {
	input := "10,12\n11,15\n"
	hasHeader := false
	s, err := NewCSV(strings.NewReader(input), CSVOptions{
		Header:    []string{"a", "b"},
		HasHeader: &hasHeader,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, s.Columns())
	rows := readAll(t, s)
	require.Len(t, rows, 2, "the first line must be treated as data")
}

func TestCSVHeaderSniffRejectsNumericFirstLine(t *testing.T) {
	// A numeric first line cannot be a header; declared names apply instead.
	input := "10,12\n11,15\n"
	s, err := NewCSV(strings.NewReader(input), CSVOptions{Header: []string{"a", "b"}})
	require.NoError(t, err)

	rows := readAll(t, s)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.RawRow{"10", "12"}, rows[0])
}

func TestCSVMissingHeaderIsConfigError(t *testing.T) {
	hasHeader := false
	_, err := NewCSV(strings.NewReader("1,2\n"), CSVOptions{HasHeader: &hasHeader})
	require.Error(t, err)
	assert.True(t, ierrors.IsConfig(err))
}

func TestCSVForcedDelimiter(t *testing.T) {
	input := "col1;col2\n1;2\n"
	s, err := NewCSV(strings.NewReader(input), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)

	assert.Equal(t, []string{"col1", "col2"}, s.Columns())
	rows := readAll(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RawRow{"1", "2"}, rows[0])
}

func TestCSVEncodingConversion(t *testing.T) {
	// "café,9" encoded in windows-1252: é is 0xE9.
	raw := append([]byte("name,n\n"), []byte{'c', 'a', 'f', 0xE9, ',', '9', '\n'}...)
	s, err := NewCSV(strings.NewReader(string(raw)), CSVOptions{Encoding: "windows-1252"})
	require.NoError(t, err)

	rows := readAll(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, "café", rows[0][0])
}

func TestCSVUnknownEncoding(t *testing.T) {
	_, err := NewCSV(strings.NewReader("a,b\n"), CSVOptions{Encoding: "no-such-charset"})
	require.Error(t, err)
	assert.True(t, ierrors.IsConfig(err))
}

func TestSniffDelimiterConsistency(t *testing.T) {
	// Commas appear in the first line but inconsistently; tabs win.
	sample := "a,b\tc\nx\ty\nz\tw"
	assert.Equal(t, '\t', sniffDelimiter(sample))

	assert.Equal(t, ',', sniffDelimiter("a,b,c\n1,2,3"))
	assert.Equal(t, '|', sniffDelimiter("a|b\n1|2"))
	assert.Equal(t, '\t', sniffDelimiter("plainline"))
}
