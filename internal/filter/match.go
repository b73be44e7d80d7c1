package filter

import (
	"strconv"
	"strings"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/domain"
)

// AllCategories is the branch filter value that matches every row.
const AllCategories = "*"

// MatchesSelection reports whether the result belongs to one of the selected
// category paths. Both the normalized full path and the main category are
// tried. An empty selection matches everything.
func MatchesSelection(res *domain.PricingResult, selected []string) bool {
	if len(selected) == 0 {
		return true
	}

	path := res.CategoryPath()
	for _, sel := range selected {
		if category.Contains(sel, path) || category.Contains(sel, res.MainCategory) {
			return true
		}
	}
	return false
}

// MatchesBranch reports whether path lies within branch.
func MatchesBranch(path, branch string) bool {
	if branch == "" || branch == AllCategories {
		return true
	}
	return category.Contains(branch, path)
}

// MatchesSearch looks for query, case-insensitively, in the stock code, the
// product name and the displayed prices of res.
func MatchesSearch(res *domain.PricingResult, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}

	if strings.Contains(strings.ToLower(res.StockCode), query) ||
		strings.Contains(strings.ToLower(res.ProductName), query) {
		return true
	}
	if res.Failed() {
		return false
	}
	for _, price := range []float64{res.BasePrice, res.FinalDiscountedPrice, res.LabelPrice} {
		if strings.Contains(FormatPrice(price), query) {
			return true
		}
	}
	return false
}

// FormatPrice renders a price the way it is displayed, with two decimals.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
