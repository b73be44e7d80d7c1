package domain

import (
	"fmt"
	"strconv"
)

// Row is one spreadsheet record keyed by column header.
type Row map[string]any

// Text renders the cell of column as a string. Missing and nil cells are "".
func (r Row) Text(column string) string {
	if column == "" {
		return ""
	}
	return CellText(r[column])
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// CellText formats a scalar cell value the way it is shown to users.
func CellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}
