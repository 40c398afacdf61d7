package currency

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateTable holds the price of one BTC in each currency. BTC and SAT are
// implicit and never need an entry.
type RateTable struct {
	Rates     map[Code]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                `json:"fetched_at"`
}

func (t RateTable) perBitcoin(c Code) (decimal.Decimal, bool) {
	switch c {
	case BTC:
		return decimal.NewFromInt(1), true
	case SAT:
		return satsPerBitcoin, true
	}
	rate, ok := t.Rates[c]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}

// Has reports whether the table can convert to and from c.
func (t RateTable) Has(c Code) bool {
	_, ok := t.perBitcoin(c)
	return ok
}

// Convert converts amount from one currency to another through the base unit
// and rounds the result to the storage precision of the target. When a rate is
// missing the input amount is returned rounded to the target precision: a rate
// feed outage must never halt a checkout.
func Convert(amount decimal.Decimal, from, to Code, rates RateTable) decimal.Decimal {
	if from == to {
		return Round(amount, to)
	}
	fromRate, okFrom := rates.perBitcoin(from)
	toRate, okTo := rates.perBitcoin(to)
	if !okFrom || !okTo {
		return Round(amount, to)
	}
	// amount / fromRate is the value in BTC; multiplying first keeps precision.
	return amount.Mul(toRate).DivRound(fromRate, to.StoragePrecision())
}

// ConvertMoney converts m into the target currency.
func ConvertMoney(m Money, to Code, rates RateTable) Money {
	return Money{Amount: Convert(m.Amount, m.Currency, to, rates), Currency: to}
}
