// Package currency holds the closed set of supported currencies, their
// precisions and the fail-soft conversion used by every price computation.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Code is an ISO-4217 style currency code, plus BTC and SAT.
type Code string

const (
	BTC Code = "BTC"
	SAT Code = "SAT"
	CHF Code = "CHF"
	EUR Code = "EUR"
	USD Code = "USD"
	GBP Code = "GBP"
	ZAR Code = "ZAR"
	XOF Code = "XOF"
	XAF Code = "XAF"
	CZK Code = "CZK"
	PHP Code = "PHP"
	KES Code = "KES"
	UGX Code = "UGX"
)

// Base is the unit every conversion goes through.
const Base = BTC

type precision struct {
	display int32
	storage int32
}

var precisions = map[Code]precision{
	BTC: {display: 8, storage: 8},
	SAT: {display: 0, storage: 0},
	CHF: {display: 2, storage: 4},
	EUR: {display: 2, storage: 4},
	USD: {display: 2, storage: 4},
	GBP: {display: 2, storage: 4},
	ZAR: {display: 2, storage: 4},
	XOF: {display: 0, storage: 4},
	XAF: {display: 0, storage: 4},
	CZK: {display: 2, storage: 4},
	PHP: {display: 2, storage: 4},
	KES: {display: 2, storage: 4},
	UGX: {display: 0, storage: 4},
}

var satsPerBitcoin = decimal.NewFromInt(100_000_000)

// Parse validates a currency code at the boundary.
func Parse(raw string) (Code, error) {
	code := Code(strings.ToUpper(strings.TrimSpace(raw)))
	if !code.Valid() {
		return "", fmt.Errorf("unsupported currency %q", raw)
	}
	return code, nil
}

// All returns the supported codes in a stable order.
func All() []Code {
	return []Code{BTC, SAT, CHF, EUR, USD, GBP, ZAR, XOF, XAF, CZK, PHP, KES, UGX}
}

func (c Code) Valid() bool {
	_, ok := precisions[c]
	return ok
}

// DisplayPrecision is the number of decimals shown on receipts and screens.
func (c Code) DisplayPrecision() int32 {
	return precisions[c].display
}

// StoragePrecision is the number of decimals every persisted amount keeps.
func (c Code) StoragePrecision() int32 {
	p, ok := precisions[c]
	if !ok {
		return 8
	}
	return p.storage
}

// Round rounds an amount to the storage precision of c.
func Round(amount decimal.Decimal, c Code) decimal.Decimal {
	return amount.Round(c.StoragePrecision())
}

// Format renders an amount at display precision, e.g. "10.77 CHF".
func Format(amount decimal.Decimal, c Code) string {
	return amount.StringFixed(c.DisplayPrecision()) + " " + string(c)
}

// Money is an amount tagged with its currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Code            `json:"currency"`
}

// NewMoney builds a Money rounded to storage precision.
func NewMoney(amount decimal.Decimal, c Code) Money {
	return Money{Amount: Round(amount, c), Currency: c}
}

// Zero returns an empty amount in c.
func Zero(c Code) Money {
	return Money{Amount: decimal.Zero, Currency: c}
}

func (m Money) String() string {
	return Format(m.Amount, m.Currency)
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Add sums two amounts of the same currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("cannot add %s to %s", o.Currency, m.Currency)
	}
	return NewMoney(m.Amount.Add(o.Amount), m.Currency), nil
}

// Sub subtracts o from m; both must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("cannot subtract %s from %s", o.Currency, m.Currency)
	}
	return NewMoney(m.Amount.Sub(o.Amount), m.Currency), nil
}
