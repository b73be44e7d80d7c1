package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type RoundingMode string

const (
	Ceiling RoundingMode = "ceiling"
	Nearest RoundingMode = "round"
	Floor   RoundingMode = "floor"
)

// ParseRoundingMode maps a settings value to a mode; unknown values round to
// the nearest step.
func ParseRoundingMode(s string) RoundingMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ceiling", "ceil":
		return Ceiling
	case "floor":
		return Floor
	default:
		return Nearest
	}
}

type RoundingConfig struct {
	Mode       RoundingMode
	Step       float64
	EndsWith99 bool
}

var cent = decimal.New(1, -2)

// Steps such as 1/3 are not exact in binary, so the quotient and the
// product are snapped before use.
const (
	quotientPlaces = 9
	pricePlaces    = 8
)

// Round snaps price to the step grid and optionally turns it into a .99
// price by subtracting one cent.
func Round(price float64, cfg RoundingConfig) float64 {
	step := cfg.Step
	if step <= 0 {
		step = 1
	}

	s := decimal.NewFromFloat(step)
	q := decimal.NewFromFloat(price).Div(s).Round(quotientPlaces)
	switch cfg.Mode {
	case Ceiling:
		q = q.Ceil()
	case Floor:
		q = q.Floor()
	default:
		q = q.Round(0)
	}

	rounded := q.Mul(s).Round(pricePlaces)
	if cfg.EndsWith99 {
		rounded = rounded.Sub(cent)
	}
	return rounded.InexactFloat64()
}

// capAfterRounding pulls a rounded price back under the maximum. With .99
// pricing the cap is one cent below the whole part of max.
func capAfterRounding(price, max float64, endsWith99 bool) float64 {
	if price <= max {
		return price
	}
	if endsWith99 {
		return decimal.NewFromFloat(math.Floor(max)).Sub(cent).InexactFloat64()
	}
	return max
}

// labelPrice derives the pre-discount price from the discounted one, rounded
// to two places.
func labelPrice(discounted, rate float64) float64 {
	divisor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(rate))
	return decimal.NewFromFloat(discounted).Div(divisor).Round(2).InexactFloat64()
}
