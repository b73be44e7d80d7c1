package pricing

import "github.com/spf13/cast"

// maxDiscountRate keeps 1 - rate away from zero for the label price division.
const maxDiscountRate = 0.99

// DiscountTable maps main categories to discount percentages.
type DiscountTable struct {
	Default float64
	Mapping map[string]float64
}

// NewDiscountTable builds a table from loosely typed settings. Entries whose
// percentage cannot be read are left out so the default applies to them.
func NewDiscountTable(defaultPercent any, mapping map[string]any) DiscountTable {
	table := DiscountTable{Mapping: make(map[string]float64, len(mapping))}

	if d, err := cast.ToFloat64E(defaultPercent); err == nil {
		table.Default = d
	}
	for name, raw := range mapping {
		if pct, ok := lenientFloat(raw); ok {
			table.Mapping[name] = pct
		}
	}
	return table
}

// Resolve returns the discount rate in [0, 0.99] for a main category. Only an
// exact match on the mapping key overrides the default.
func (t DiscountTable) Resolve(mainCategory string) float64 {
	pct, ok := t.Mapping[mainCategory]
	if !ok {
		pct = t.Default
	}
	return clampRate(pct / 100)
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > maxDiscountRate {
		return maxDiscountRate
	}
	return rate
}
