package exporter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// JSONLWriter streams resolved rows as JSON lines, one object per row
type JSONLWriter struct{}

// NewJSONLWriter creates a new JSON lines writer
func NewJSONLWriter() *JSONLWriter {
	return &JSONLWriter{}
}

// Write drains rows into out, one JSON object per line. Missing values are
// encoded as null.
func (w *JSONLWriter) Write(out io.Writer, rows RowIterator) (int, error) {
	bw := bufio.NewWriter(out)
	enc := json.NewEncoder(bw)
	count := 0
	for rows.Next() {
		row := rows.Row()
		obj := make(map[string]interface{}, row.Len())
		for _, col := range row.Columns() {
			v, _ := row.Get(col)
			obj[col] = v.Native()
		}
		if err := enc.Encode(obj); err != nil {
			return count, fmt.Errorf("failed to encode row %d: %w", count, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("row stream failed: %w", err)
	}
	return count, bw.Flush()
}
