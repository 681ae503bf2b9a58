package assertion

import (
	"fmt"
	"math"
	"regexp"

	"github.com/paiml/probar/internal/perr"
)

func compileFullMatch(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}

// ApproxEqual reports whether a and b are within epsilon of each other.
// Per spec.md §4.4, NaN is never equal to anything, including itself,
// and ApproxEqual rejects NaN inputs outright rather than silently
// returning false.
func ApproxEqual(a, b, epsilon float64) (bool, error) {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false, perr.New(perr.KindValidationError, component, "approx_eq", "NaN is not a valid operand", nil)
	}
	return math.Abs(a-b) <= epsilon, nil
}

// Range is an inclusive numeric range; inverted ranges are rejected at
// construction (spec.md §4.4).
type Range struct {
	Min, Max float64
}

// NewRange validates min <= max before constructing a Range.
func NewRange(min, max float64) (Range, error) {
	if min > max {
		return Range{}, perr.New(perr.KindValidationError, component, "new_range", fmt.Sprintf("inverted range: min=%v > max=%v", min, max), nil)
	}
	return Range{Min: min, Max: max}, nil
}

// Contains reports whether v falls within [r.Min, r.Max] inclusive.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }
