package filter

import (
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/pricing"
)

// StockValue reads the stock cell of row. Missing or unreadable cells count as
// zero stock.
func StockValue(row domain.Row, column string) float64 {
	if column == "" {
		return 0
	}
	v, ok := row[column]
	if !ok || v == nil {
		return 0
	}
	f, err := pricing.ParseNumber(v)
	if err != nil {
		return 0
	}
	return f
}

// InStock reports whether row passes the stock filter.
func InStock(row domain.Row, column string, includeZero bool) bool {
	if column == "" || includeZero {
		return true
	}
	return StockValue(row, column) > 0
}

// FilterByStock drops rows without positive stock unless includeZero is set
// or no stock column is configured.
func FilterByStock(rows []domain.Row, column string, includeZero bool) []domain.Row {
	if column == "" || includeZero {
		return rows
	}

	filtered := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		if InStock(row, column, false) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}
