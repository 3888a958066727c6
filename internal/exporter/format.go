package exporter

import (
	"strconv"

	"timeslice/pkg/contracts/domain"
)

// formatValue renders a cell value for CSV output. Numbers use the
// shortest representation that round-trips; missing values are empty.
func formatValue(v domain.Value) string {
	switch v.Kind() {
	case domain.KindNumber:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case domain.KindText:
		return v.Text()
	default:
		return ""
	}
}
