package domain

// Targets selects which price columns an export rewrites.
type Targets struct {
	UpdateDiscounted bool `mapstructure:"update_discounted" json:"update_discounted"`
	UpdateSell       bool `mapstructure:"update_sell" json:"update_sell"`
	UpdateMarket     bool `mapstructure:"update_market" json:"update_market"`
}
