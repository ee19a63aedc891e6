package value

import (
	"sync"

	"github.com/nautilus-go/kernel/internal/kernelerr"
)

// CurrencyKind distinguishes fiat from crypto currencies, mirroring the
// teacher's flyweight enum style (pkg/types.TickSize).
type CurrencyKind int

const (
	FIAT CurrencyKind = iota
	CRYPTO
)

func (k CurrencyKind) String() string {
	if k == CRYPTO {
		return "CRYPTO"
	}
	return "FIAT"
}

// Currency is an immutable flyweight keyed by code: code, precision (decimal
// digits), ISO4217 numeric code (0 for crypto), and kind.
type Currency struct {
	Code      string
	Precision uint8
	ISO4217   int
	Kind      CurrencyKind
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Currency)
)

// RegisterCurrency adds (or re-adds an identical) currency to the process-wide
// flyweight registry. Re-registering a currency with a different definition
// is a ValidationError — currencies are immutable for process lifetime (§3).
func RegisterCurrency(c Currency) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, ok := registry[c.Code]; ok {
		if existing != c {
			return kernelerr.NewValidation("CURRENCY_REDEFINED",
				"currency "+c.Code+" already registered with a different definition")
		}
		return nil
	}
	registry[c.Code] = c
	return nil
}

// LookupCurrency returns the registered currency for code, or false if none
// has been registered.
func LookupCurrency(code string) (Currency, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[code]
	return c, ok
}

// MustCurrency registers c if absent and returns it; panics only on a
// conflicting re-definition, which is a programming error at startup.
func MustCurrency(c Currency) Currency {
	if err := RegisterCurrency(c); err != nil {
		panic(err)
	}
	return c
}

// Well-known currencies, registered eagerly so tests and examples can refer
// to them without an explicit bootstrap step.
var (
	USD = MustCurrency(Currency{Code: "USD", Precision: 2, ISO4217: 840, Kind: FIAT})
	AUD = MustCurrency(Currency{Code: "AUD", Precision: 2, ISO4217: 36, Kind: FIAT})
	JPY = MustCurrency(Currency{Code: "JPY", Precision: 0, ISO4217: 392, Kind: FIAT})
	USDT = MustCurrency(Currency{Code: "USDT", Precision: 6, ISO4217: 0, Kind: CRYPTO})
	BTC  = MustCurrency(Currency{Code: "BTC", Precision: 8, ISO4217: 0, Kind: CRYPTO})
)
