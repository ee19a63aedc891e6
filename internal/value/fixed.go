package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nautilus-go/kernel/internal/kernelerr"
)

// maxPrecision bounds the number of decimal digits a Price/Quantity mantissa
// can carry. Nine digits keeps pow10 tables in an int64 with headroom for
// the mantissa itself (matches the precision ceiling nautilus_trader uses).
const maxPrecision = 9

var pow10 = [maxPrecision + 1]int64{
	1, 10, 100, 1_000, 10_000, 100_000,
	1_000_000, 10_000_000, 100_000_000, 1_000_000_000,
}

// fixed is the shared integer-mantissa representation behind Price and
// Quantity: an exact int64 mantissa at a fixed per-instrument decimal
// precision. All arithmetic on a fixed is exact; it never touches float64.
type fixed struct {
	raw       int64 // mantissa, i.e. value * 10^precision
	precision uint8
}

func newFixedFromString(s string, precision uint8) (fixed, error) {
	if precision > maxPrecision {
		return fixed{}, kernelerr.NewValidation("PRECISION_OUT_OF_RANGE",
			fmt.Sprintf("precision %d exceeds maximum %d", precision, maxPrecision))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fixed{}, kernelerr.NewValidation("EMPTY_SCALAR", "scalar string is empty")
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (hasFrac && !isDigits(fracPart)) {
		return fixed{}, kernelerr.NewValidation("MALFORMED_SCALAR", "scalar is not a valid decimal: "+s)
	}

	// Banker's rounding (round-half-to-even) at the target precision when
	// the source has more decimal digits than the instrument allows.
	roundUp := false
	if len(fracPart) > int(precision) {
		keep := fracPart[:precision]
		rest := fracPart[precision:]
		fracPart = keep
		roundUp = roundsUp(keep, rest)
	}
	for len(fracPart) < int(precision) {
		fracPart += "0"
	}

	digits := intPart + fracPart
	raw, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return fixed{}, kernelerr.NewValidation("SCALAR_OVERFLOW", "scalar mantissa overflows int64: "+s)
	}
	if roundUp {
		raw++
	}
	if neg {
		raw = -raw
	}
	return fixed{raw: raw, precision: precision}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// roundsUp implements round-half-to-even given the kept fractional digits and
// the discarded remainder.
func roundsUp(keep, rest string) bool {
	if rest == "" {
		return false
	}
	firstDiscarded := rest[0]
	if firstDiscarded < '5' {
		return false
	}
	if firstDiscarded > '5' {
		return true
	}
	for _, r := range rest[1:] {
		if r != '0' {
			return true
		}
	}
	// Exactly halfway: round to even.
	if keep == "" {
		return false
	}
	lastKept := keep[len(keep)-1]
	return (lastKept-'0')%2 == 1
}

func newFixedFromInt(mantissa int64, precision uint8) (fixed, error) {
	if precision > maxPrecision {
		return fixed{}, kernelerr.NewValidation("PRECISION_OUT_OF_RANGE",
			fmt.Sprintf("precision %d exceeds maximum %d", precision, maxPrecision))
	}
	return fixed{raw: mantissa, precision: precision}, nil
}

func (f fixed) add(other fixed) (fixed, error) {
	if f.precision != other.precision {
		return fixed{}, kernelerr.NewValidation("PRECISION_MISMATCH", "cannot add scalars of differing precision")
	}
	sum := f.raw + other.raw
	if (other.raw > 0 && sum < f.raw) || (other.raw < 0 && sum > f.raw) {
		return fixed{}, kernelerr.NewInvariant("SCALAR_OVERFLOW", "fixed-point addition overflowed int64 mantissa")
	}
	return fixed{raw: sum, precision: f.precision}, nil
}

func (f fixed) sub(other fixed) (fixed, error) {
	if f.precision != other.precision {
		return fixed{}, kernelerr.NewValidation("PRECISION_MISMATCH", "cannot subtract scalars of differing precision")
	}
	diff := f.raw - other.raw
	if (other.raw < 0 && diff < f.raw) || (other.raw > 0 && diff > f.raw) {
		return fixed{}, kernelerr.NewInvariant("SCALAR_OVERFLOW", "fixed-point subtraction overflowed int64 mantissa")
	}
	return fixed{raw: diff, precision: f.precision}, nil
}

// mulScalar multiplies by an integer scalar, returning the same precision.
func (f fixed) mulScalar(n int64) (fixed, error) {
	if n != 0 && f.raw != 0 {
		product := f.raw * n
		if product/n != f.raw {
			return fixed{}, kernelerr.NewInvariant("SCALAR_OVERFLOW", "fixed-point multiplication overflowed int64 mantissa")
		}
		return fixed{raw: product, precision: f.precision}, nil
	}
	return fixed{raw: 0, precision: f.precision}, nil
}

func (f fixed) cmp(other fixed) int {
	switch {
	case f.raw < other.raw:
		return -1
	case f.raw > other.raw:
		return 1
	default:
		return 0
	}
}

func (f fixed) isZero() bool { return f.raw == 0 }

func (f fixed) asFloat64() float64 {
	return float64(f.raw) / float64(pow10[f.precision])
}

func (f fixed) String() string {
	if f.precision == 0 {
		return strconv.FormatInt(f.raw, 10)
	}
	neg := f.raw < 0
	raw := f.raw
	if neg {
		raw = -raw
	}
	scale := pow10[f.precision]
	intPart := raw / scale
	fracPart := raw % scale
	s := fmt.Sprintf("%d.%0*d", intPart, f.precision, fracPart)
	if neg {
		s = "-" + s
	}
	return s
}

// divisibleBy reports whether f is an exact integer multiple of step, both
// at the same precision — used for tick-grid and lot-size validation.
func (f fixed) divisibleBy(step fixed) bool {
	if step.raw == 0 {
		return false
	}
	return f.raw%step.raw == 0
}

// fromFloat64 rounds a float64 to the nearest int64 mantissa at the
// given precision, banker's rounding at the halfway point. Used only at data
// ingestion boundaries (e.g. converting a venue's float price).
func fromFloat64(v float64, precision uint8) fixed {
	scale := float64(pow10[precision])
	scaled := v * scale
	r := math.RoundToEven(scaled)
	return fixed{raw: int64(r), precision: precision}
}
