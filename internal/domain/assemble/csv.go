package assemble

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// NA is written for nil cells.
const NA = "NA"

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%w: row %d has %d cells, header has %d", ErrLengthMismatch, i, len(row), len(t.Columns))
		}
		for j, cell := range row {
			record[j] = formatCell(cell)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return NA
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
