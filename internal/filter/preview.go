package filter

import (
	"sort"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/pricing"
)

// Options narrows a preview down to what the user is looking at.
type Options struct {
	Search   string   `json:"search"`
	Branch   string   `json:"branch"`
	Selected []string `json:"selected"`
}

// PreviewRow is a priced row as shown in the preview table.
type PreviewRow struct {
	domain.PricingResult

	Stock        float64 `json:"stock"`
	VariantID    string  `json:"variant_id,omitempty"`
	VariantValue string  `json:"variant_value,omitempty"`
}

// PreviewReport is the result of pricing a whole sheet without writing it.
type PreviewReport struct {
	Rows []PreviewRow `json:"rows"`
	// Changed counts rows whose price moved, with every variant group
	// counted once in variant mode.
	Changed int `json:"changed"`
	// Categories are the distinct main categories of all rows, sorted.
	Categories []string `json:"categories"`
	// CategoryCounts are raw per path counts over all rows.
	CategoryCounts map[string]int `json:"category_counts"`
}

// Preview prices every row and applies the stock, branch, selection and
// search filters. Category statistics cover all rows, filtered or not.
func Preview(rows []domain.Row, cfg *pricing.Config, opts Options) PreviewReport {
	cols := cfg.Columns
	variantCol := cols.Variant()

	report := PreviewReport{Rows: make([]PreviewRow, 0, len(rows))}
	cats := make(map[string]struct{})
	paths := make([]string, 0, len(rows))
	seenVariants := make(map[string]struct{})
	changedVariants := make(map[string]struct{})
	changedSimple := 0

	for _, row := range rows {
		res := pricing.CalculateRow(row, cfg)

		if res.MainCategory != "" {
			cats[res.MainCategory] = struct{}{}
		}
		paths = append(paths, res.FullCategoryPath)

		if !InStock(row, cols.StockColumn, cols.IncludeZeroStock) {
			continue
		}
		if !MatchesBranch(res.CategoryPath(), opts.Branch) {
			continue
		}
		if !MatchesSelection(&res, opts.Selected) {
			continue
		}
		if !MatchesSearch(&res, opts.Search) {
			continue
		}

		pr := PreviewRow{
			PricingResult: res,
			Stock:         StockValue(row, cols.StockColumn),
		}
		if variantCol != "" {
			pr.VariantID = row.Text(variantCol)
			pr.VariantValue = row.Text(cols.VariantValueColumn)
		}

		if variantCol != "" && cols.ShowUniqueVariant && pr.VariantID != "" {
			if _, seen := seenVariants[pr.VariantID]; !seen {
				seenVariants[pr.VariantID] = struct{}{}
				report.Rows = append(report.Rows, pr)
			}
		} else {
			report.Rows = append(report.Rows, pr)
		}

		if res.Changed() {
			if pr.VariantID != "" {
				changedVariants[pr.VariantID] = struct{}{}
			} else {
				changedSimple++
			}
		}
	}

	report.Changed = len(changedVariants) + changedSimple
	report.Categories = make([]string, 0, len(cats))
	for c := range cats {
		report.Categories = append(report.Categories, c)
	}
	sort.Strings(report.Categories)
	report.CategoryCounts = category.CountPaths(paths, cols.NoCategoryMode)

	return report
}
