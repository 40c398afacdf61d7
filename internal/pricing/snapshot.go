// Package pricing freezes cart and tab lines into immutable currency snapshots.
package pricing

import (
	"github.com/shopspring/decimal"

	"settlement/internal/currency"
	"settlement/internal/vat"
)

// PriceSet is one line priced in a single currency, at storage precision.
type PriceSet struct {
	Currency   currency.Code    `json:"currency"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	TotalPrice decimal.Decimal  `json:"total_price"`
	Discount   *decimal.Decimal `json:"discount,omitempty"`
}

// CurrencySnapshot prices a line both in the settlement currency and in the
// reference currency amounts are accounted in.
type CurrencySnapshot struct {
	Main    PriceSet `json:"main"`
	Storage PriceSet `json:"storage"`
}

// Totals is the order-level aggregate in one currency. Net excludes VAT,
// Total is what the customer pays.
type Totals struct {
	Currency currency.Code   `json:"currency"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Net      decimal.Decimal `json:"net"`
	Vat      decimal.Decimal `json:"vat"`
	Total    decimal.Decimal `json:"total"`
}

type TotalsSnapshot struct {
	Main    Totals `json:"main"`
	Storage Totals `json:"storage"`
}

// AmountSnapshot freezes a payment amount.
type AmountSnapshot struct {
	Main    currency.Money `json:"main"`
	Storage currency.Money `json:"storage"`
}

// NewAmountSnapshot converts a settlement amount into its frozen pair.
func NewAmountSnapshot(main currency.Money, storage currency.Code, rates currency.RateTable) AmountSnapshot {
	return AmountSnapshot{
		Main:    currency.NewMoney(main.Amount, main.Currency),
		Storage: currency.ConvertMoney(main, storage, rates),
	}
}

// VatLine is the VAT due for one (country, rate) group.
type VatLine struct {
	Country      vat.Country     `json:"country"`
	Rate         decimal.Decimal `json:"rate"`
	Price        decimal.Decimal `json:"price"`
	StoragePrice decimal.Decimal `json:"storage_price"`
}

type LineResult struct {
	ProductID    string           `json:"product_id"`
	Quantity     int              `json:"quantity"`
	FreeQuantity int              `json:"free_quantity,omitempty"`
	VatCountry   vat.Country      `json:"vat_country,omitempty"`
	VatRate      decimal.Decimal  `json:"vat_rate"`
	Snapshot     CurrencySnapshot `json:"currency_snapshot"`
}

type Result struct {
	Lines  []LineResult   `json:"lines"`
	Vat    []VatLine      `json:"vat"`
	Totals TotalsSnapshot `json:"totals"`
}
