package domain

// Price source keys. Any of them can be configured as the base price source.
const (
	BuyPriceSource        = "buy_price_col"
	SellPriceSource       = "sell_price_col"
	DiscountedPriceSource = "discounted_price_col"
	MarketPriceSource     = "market_price_col"
)

// ColumnMappings binds logical fields to spreadsheet column headers.
type ColumnMappings struct {
	StockCodeColumn       string `mapstructure:"stock_code_col" json:"stock_code_col"`
	ProductNameColumn     string `mapstructure:"product_name_col" json:"product_name_col"`
	CategoryColumn        string `mapstructure:"category_col" json:"category_col"`
	BuyPriceColumn        string `mapstructure:"buy_price_col" json:"buy_price_col"`
	SellPriceColumn       string `mapstructure:"sell_price_col" json:"sell_price_col"`
	DiscountedPriceColumn string `mapstructure:"discounted_price_col" json:"discounted_price_col"`
	MarketPriceColumn     string `mapstructure:"market_price_col" json:"market_price_col"`
	VariantColumn         string `mapstructure:"variant_col" json:"variant_col"`
	VariantValueColumn    string `mapstructure:"variant_value_col" json:"variant_value_col"`
	StockColumn           string `mapstructure:"stock_col" json:"stock_col"`

	IsVariantMode     bool `mapstructure:"is_variant_mode" json:"is_variant_mode"`
	ShowUniqueVariant bool `mapstructure:"show_unique_variant" json:"show_unique_variant"`
	NoCategoryMode    bool `mapstructure:"no_category_mode" json:"no_category_mode"`
	IncludeZeroStock  bool `mapstructure:"include_zero_stock" json:"include_zero_stock"`
}

// PriceColumn resolves a price source key to its configured column header.
func (m ColumnMappings) PriceColumn(source string) string {
	switch source {
	case BuyPriceSource:
		return m.BuyPriceColumn
	case SellPriceSource:
		return m.SellPriceColumn
	case DiscountedPriceSource:
		return m.DiscountedPriceColumn
	case MarketPriceSource:
		return m.MarketPriceColumn
	default:
		return ""
	}
}

// Variant returns the variant column, or "" when variant mode is off.
func (m ColumnMappings) Variant() string {
	if !m.IsVariantMode {
		return ""
	}
	return m.VariantColumn
}
