package pricing

import (
	"strings"
)

type SegmentKind string

const (
	FixedAmount SegmentKind = "TL"
	Percent     SegmentKind = "PERCENT"
)

// ParseSegmentKind treats any type mentioning PERCENT (or the Turkish YÜZDE)
// as a percentage, and everything else as a fixed amount.
func ParseSegmentKind(s string) SegmentKind {
	upper := strings.ToUpper(s)
	if strings.Contains(upper, "PERCENT") || strings.Contains(upper, "YÜZDE") {
		return Percent
	}
	return FixedAmount
}

// Segment is a price band with its profit formula. Bounds are inclusive.
type Segment struct {
	Min   float64
	Max   float64
	Kind  SegmentKind
	Value float64
	Extra float64
}

// NewSegment builds a segment from loosely typed settings. The second return
// is false when min, max or value cannot be read; such a segment never
// matches. A malformed extra counts as 0.
func NewSegment(min, max any, kind string, value, extra any) (Segment, bool) {
	lo, ok := lenientFloat(min)
	if !ok {
		return Segment{}, false
	}
	hi, ok := lenientFloat(max)
	if !ok {
		return Segment{}, false
	}
	v, ok := lenientFloat(value)
	if !ok {
		return Segment{}, false
	}
	e, _ := lenientFloat(extra)

	return Segment{
		Min:   lo,
		Max:   hi,
		Kind:  ParseSegmentKind(kind),
		Value: v,
		Extra: e,
	}, true
}

// Matches reports whether price falls inside the band.
func (s Segment) Matches(price float64) bool {
	return s.Min <= price && price <= s.Max
}

// Profit is the amount the segment adds on top of base.
func (s Segment) Profit(base float64) float64 {
	var profit float64
	if s.Kind == Percent {
		profit = base * s.Value / 100
	} else {
		profit = s.Value
	}
	return profit + s.Extra
}

// ResolveProfit picks the first segment containing base, in declaration
// order, and returns its profit. No match means no profit. When the global
// minimum is enabled the result is raised to at least globalMin.
func ResolveProfit(base float64, segments []Segment, globalMinEnabled bool, globalMin float64) float64 {
	profit := 0.0
	for _, seg := range segments {
		if seg.Matches(base) {
			profit = seg.Profit(base)
			break
		}
	}

	if globalMinEnabled && profit < globalMin {
		profit = globalMin
	}
	return profit
}
