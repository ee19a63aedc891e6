package value

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/kernel/internal/kernelerr"
)

// Money pairs a decimal scalar with a Currency. Unlike Price/Quantity,
// Money backs onto shopspring/decimal rather than the bespoke fixed type:
// account balances and PnL routinely need division (e.g. cross-rate
// conversion in Portfolio.NetLiquidationValue, §4.11) that the exact
// integer-mantissa fixed type deliberately does not support.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney builds a Money from a decimal string, rounded banker's-style to
// the currency's precision.
func NewMoney(amountStr string, ccy Currency) (Money, error) {
	d, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Money{}, kernelerr.NewValidation("MALFORMED_MONEY", "not a valid decimal amount: "+amountStr)
	}
	return Money{amount: d.RoundBank(int32(ccy.Precision)), currency: ccy}, nil
}

// NewMoneyFromDecimal builds a Money from an existing decimal.Decimal,
// rounding to the currency's precision.
func NewMoneyFromDecimal(d decimal.Decimal, ccy Currency) Money {
	return Money{amount: d.RoundBank(int32(ccy.Precision)), currency: ccy}
}

// ZeroMoney returns the additive identity in the given currency.
func ZeroMoney(ccy Currency) Money {
	return Money{amount: decimal.Zero, currency: ccy}
}

func (m Money) Currency() Currency { return m.currency }
func (m Money) Decimal() decimal.Decimal { return m.amount }
func (m Money) AsFloat64() float64 { f, _ := m.amount.Float64(); return f }
func (m Money) IsZero() bool       { return m.amount.IsZero() }
func (m Money) IsNegative() bool   { return m.amount.IsNegative() }
func (m Money) String() string {
	return m.amount.StringFixed(int32(m.currency.Precision)) + " " + m.currency.Code
}

func (m Money) sameCurrency(o Money) error {
	if m.currency.Code != o.currency.Code {
		return kernelerr.NewValidation("CURRENCY_MISMATCH",
			"cannot combine money in "+m.currency.Code+" with "+o.currency.Code)
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(o.amount).RoundBank(int32(m.currency.Precision)), currency: m.currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(o.amount).RoundBank(int32(m.currency.Precision)), currency: m.currency}, nil
}

// MulRate scales m by an arbitrary-precision rate (e.g. a cross rate or a
// commission percentage), rounding the result to the currency's precision.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(rate).RoundBank(int32(m.currency.Precision)), currency: m.currency}
}

func (m Money) Compare(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

func (m Money) Negate() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

type wireMoney struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMoney{Amount: m.amount.String(), Currency: m.currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var w wireMoney
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := NewMoney(w.Amount, w.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
