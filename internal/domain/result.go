package domain

import (
	"catalog/repricer/internal/category"
)

// FailureKind tags a row that could not be priced.
type FailureKind string

const (
	InvalidBasePrice     FailureKind = "InvalidBasePrice"
	NonPositiveBasePrice FailureKind = "NonPositiveBasePrice"
)

// Message is the human readable description of the failure.
func (k FailureKind) Message() string {
	switch k {
	case InvalidBasePrice:
		return "Invalid base price"
	case NonPositiveBasePrice:
		return "Zero or negative base price"
	default:
		return string(k)
	}
}

// PricingResult is the outcome of pricing one row. When Failure is set only
// the category fields are meaningful.
type PricingResult struct {
	StockCode    string `json:"stock_code"`
	ProductName  string `json:"product_name"`
	MainCategory string `json:"main_category"`
	// FullCategoryPath is the raw category cell, left unmodified.
	FullCategoryPath string `json:"full_category_path"`

	BasePrice            float64 `json:"base_price"`
	ProfitAdded          float64 `json:"profit_added"`
	RawDiscountedPrice   float64 `json:"raw_discounted_price"`
	FinalDiscountedPrice float64 `json:"final_discounted_price"`
	LabelPrice           float64 `json:"label_price"`
	DiscountRateUsed     float64 `json:"discount_rate_used"`

	Failure FailureKind `json:"error,omitempty"`
}

// Failed reports whether the row was rejected.
func (r *PricingResult) Failed() bool {
	return r.Failure != ""
}

// CategoryPath is the normalized full category path, falling back to the
// main category when the raw path is empty.
func (r *PricingResult) CategoryPath() string {
	if path := category.Normalize(r.FullCategoryPath); path != "" {
		return path
	}
	return r.MainCategory
}

// Changed reports whether pricing moved the price by more than a cent.
func (r *PricingResult) Changed() bool {
	if r.Failed() {
		return false
	}
	diff := r.FinalDiscountedPrice - r.BasePrice
	return diff > 0.01 || diff < -0.01
}
