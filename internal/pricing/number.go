package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ErrNotNumeric is returned for cells that do not hold a usable number.
var ErrNotNumeric = errors.New("value is not numeric")

// ParseNumber reads a cell as a float. Empty cells, non-numeric text, NaN and
// infinities are rejected.
func ParseNumber(v any) (float64, error) {
	var (
		f   float64
		err error
	)

	switch val := v.(type) {
	case nil:
		return 0, ErrNotNumeric
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(val), 64)
	default:
		f, err = cast.ToFloat64E(val)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
	}
	return f, nil
}

// lenientFloat converts loosely typed settings values. nil counts as missing.
func lenientFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := ParseNumber(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
