package value

import (
	"encoding/json"

	"github.com/nautilus-go/kernel/internal/kernelerr"
)

// Price is an exact, fixed-precision price scalar. Construction from a
// string rounds banker's-style to the requested precision; all arithmetic
// thereafter is exact integer math — Price never touches float64 except at
// NewPriceFromFloat64 / AsFloat64, the two explicit data-boundary escape hatches.
type Price struct{ f fixed }

// NewPriceFromString parses s (e.g. "0.75000") at the given decimal precision.
func NewPriceFromString(s string, precision uint8) (Price, error) {
	f, err := newFixedFromString(s, precision)
	if err != nil {
		return Price{}, err
	}
	return Price{f: f}, nil
}

// NewPriceFromInt builds a Price directly from an integer mantissa.
func NewPriceFromInt(mantissa int64, precision uint8) (Price, error) {
	f, err := newFixedFromInt(mantissa, precision)
	if err != nil {
		return Price{}, err
	}
	return Price{f: f}, nil
}

// NewPriceFromFloat64 rounds v to precision decimal digits. Only to be used
// at an external ingestion boundary (a venue quote, a bar's OHLC fields).
func NewPriceFromFloat64(v float64, precision uint8) Price {
	return Price{f: fromFloat64(v, precision)}
}

func (p Price) Precision() uint8 { return p.f.precision }
func (p Price) Raw() int64       { return p.f.raw }
func (p Price) AsFloat64() float64 { return p.f.asFloat64() }
func (p Price) IsZero() bool       { return p.f.isZero() }
func (p Price) String() string     { return p.f.String() }

func (p Price) Add(o Price) (Price, error) {
	f, err := p.f.add(o.f)
	return Price{f: f}, err
}

func (p Price) Sub(o Price) (Price, error) {
	f, err := p.f.sub(o.f)
	return Price{f: f}, err
}

func (p Price) Compare(o Price) int { return p.f.cmp(o.f) }
func (p Price) LessThan(o Price) bool    { return p.Compare(o) < 0 }
func (p Price) GreaterThan(o Price) bool { return p.Compare(o) > 0 }
func (p Price) Equal(o Price) bool       { return p.Compare(o) == 0 }
func (p Price) LessOrEqual(o Price) bool    { return p.Compare(o) <= 0 }
func (p Price) GreaterOrEqual(o Price) bool { return p.Compare(o) >= 0 }

// OnTickGrid reports whether p is an integer multiple of tickSize, i.e. a
// legal price for an instrument whose minimum increment is tickSize (§4.1).
func (p Price) OnTickGrid(tickSize Price) bool {
	if p.f.precision != tickSize.f.precision {
		return false
	}
	return p.f.divisibleBy(tickSize.f)
}

// OneTick returns p shifted by one tick in the given direction (+1 or -1),
// used by the matching engine's slippage model.
func (p Price) OneTick(tickSize Price, direction int) (Price, error) {
	if direction >= 0 {
		return p.Add(tickSize)
	}
	return p.Sub(tickSize)
}

// Quantity is an exact, fixed-precision size scalar (shares, contracts,
// tokens). Same exactness guarantees as Price.
type Quantity struct{ f fixed }

func NewQuantityFromString(s string, precision uint8) (Quantity, error) {
	f, err := newFixedFromString(s, precision)
	if err != nil {
		return Quantity{}, err
	}
	if f.raw < 0 {
		return Quantity{}, kernelerr.NewValidation("NEGATIVE_QUANTITY", "quantity must not be negative: "+s)
	}
	return Quantity{f: f}, nil
}

func NewQuantityFromInt(mantissa int64, precision uint8) (Quantity, error) {
	if mantissa < 0 {
		return Quantity{}, kernelerr.NewValidation("NEGATIVE_QUANTITY", "quantity mantissa must not be negative")
	}
	f, err := newFixedFromInt(mantissa, precision)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{f: f}, nil
}

func NewQuantityFromFloat64(v float64, precision uint8) (Quantity, error) {
	if v < 0 {
		return Quantity{}, kernelerr.NewValidation("NEGATIVE_QUANTITY", "quantity must not be negative")
	}
	return Quantity{f: fromFloat64(v, precision)}, nil
}

// ZeroQuantity returns the additive identity at the given precision.
func ZeroQuantity(precision uint8) Quantity {
	q, _ := NewQuantityFromInt(0, precision)
	return q
}

func (q Quantity) Precision() uint8    { return q.f.precision }
func (q Quantity) Raw() int64          { return q.f.raw }
func (q Quantity) AsFloat64() float64  { return q.f.asFloat64() }
func (q Quantity) IsZero() bool        { return q.f.isZero() }
func (q Quantity) String() string      { return q.f.String() }

func (q Quantity) Add(o Quantity) (Quantity, error) {
	f, err := q.f.add(o.f)
	return Quantity{f: f}, err
}

func (q Quantity) Sub(o Quantity) (Quantity, error) {
	f, err := q.f.sub(o.f)
	if err == nil && f.raw < 0 {
		return Quantity{}, kernelerr.NewInvariant("NEGATIVE_QUANTITY", "quantity subtraction went negative")
	}
	return Quantity{f: f}, err
}

func (q Quantity) Compare(o Quantity) int     { return q.f.cmp(o.f) }
func (q Quantity) LessThan(o Quantity) bool   { return q.Compare(o) < 0 }
func (q Quantity) GreaterThan(o Quantity) bool { return q.Compare(o) > 0 }
func (q Quantity) Equal(o Quantity) bool       { return q.Compare(o) == 0 }

// OfLotSize reports whether q is an integer multiple of lotSize (§3).
func (q Quantity) OfLotSize(lotSize Quantity) bool {
	if q.f.precision != lotSize.f.precision {
		return false
	}
	return q.f.divisibleBy(lotSize.f)
}

// wireScalar is the JSON shape both Price and Quantity round-trip through:
// the exact decimal string plus its precision, reparsed through the same
// banker's-rounding constructor used everywhere else.
type wireScalar struct {
	Value     string `json:"value"`
	Precision uint8  `json:"precision"`
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireScalar{Value: p.String(), Precision: p.Precision()})
}

func (p *Price) UnmarshalJSON(data []byte) error {
	var w wireScalar
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := NewPriceFromString(w.Value, w.Precision)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireScalar{Value: q.String(), Precision: q.Precision()})
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	var w wireScalar
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := NewQuantityFromString(w.Value, w.Precision)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
