package pricing

import (
	"math"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/domain"
)

// Limits bound the discounted price before rounding.
type Limits struct {
	MinDiscountedPrice float64
	MaxDiscountedPrice float64
}

// Config is everything CalculateRow needs. It is read only, so one value can
// be shared by any number of workers.
type Config struct {
	Columns         domain.ColumnMappings
	BasePriceSource string
	Delimiters      []string

	Discounts        DiscountTable
	Segments         []Segment
	GlobalMinEnabled bool
	GlobalMinProfit  float64

	Rounding RoundingConfig
	Limits   Limits
}

// CalculateRow prices a single row. A row whose base price cannot be used
// comes back with Failure set and only its category fields filled.
func CalculateRow(row domain.Row, cfg *Config) domain.PricingResult {
	var rawCategory, mainCategory string
	if cfg.Columns.NoCategoryMode {
		rawCategory = category.Uncategorized
		mainCategory = category.Uncategorized
	} else {
		rawCategory = row.Text(cfg.Columns.CategoryColumn)
		mainCategory = category.Main(rawCategory, cfg.Delimiters)
	}

	res := domain.PricingResult{
		StockCode:        row.Text(cfg.Columns.StockCodeColumn),
		ProductName:      row.Text(cfg.Columns.ProductNameColumn),
		MainCategory:     mainCategory,
		FullCategoryPath: rawCategory,
	}

	rate := cfg.Discounts.Resolve(mainCategory)

	base, err := basePrice(row, cfg.Columns.PriceColumn(cfg.BasePriceSource))
	if err != nil {
		res.Failure = domain.InvalidBasePrice
		return res
	}
	if base <= 0 {
		res.Failure = domain.NonPositiveBasePrice
		return res
	}

	profit := ResolveProfit(base, cfg.Segments, cfg.GlobalMinEnabled, cfg.GlobalMinProfit)

	raw := math.Min(math.Max(base+profit, cfg.Limits.MinDiscountedPrice), cfg.Limits.MaxDiscountedPrice)
	final := Round(raw, cfg.Rounding)
	// Only the upper bound is enforced again after rounding.
	final = capAfterRounding(final, cfg.Limits.MaxDiscountedPrice, cfg.Rounding.EndsWith99)

	res.BasePrice = base
	res.ProfitAdded = profit
	res.RawDiscountedPrice = raw
	res.FinalDiscountedPrice = final
	res.LabelPrice = labelPrice(final, rate)
	res.DiscountRateUsed = rate * 100
	return res
}

// basePrice reads the price column. A row without the column counts as a
// zero price.
func basePrice(row domain.Row, column string) (float64, error) {
	v, ok := row[column]
	if !ok {
		return 0, nil
	}
	return ParseNumber(v)
}
