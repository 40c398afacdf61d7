// Package vat resolves the VAT rate applicable to a line and converts amounts
// between VAT-exclusive and VAT-inclusive forms. Rates are percentages.
package vat

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CountryRate is a custom rate a profile applies in one country.
type CountryRate struct {
	Country Country         `json:"country"`
	Rate    decimal.Decimal `json:"rate"`
}

// Profile groups products sharing a VAT treatment (reduced rate, exempt, ...).
type Profile struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Rates []CountryRate `json:"rates"`
}

// RateFor returns the custom rate of the profile for c, if any.
func (p Profile) RateFor(c Country) (decimal.Decimal, bool) {
	for _, r := range p.Rates {
		if r.Country == c {
			return r.Rate, true
		}
	}
	return decimal.Zero, false
}

type RateQuery struct {
	ProductVatProfileID string
	Profiles            []Profile
	ShopCountry         Country
	CustomerCountry     Country
	SingleCountry       bool
}

// Country picks the country whose VAT applies.
func (q RateQuery) Country() Country {
	if q.SingleCountry || q.CustomerCountry.IsZero() {
		return q.ShopCountry
	}
	return q.CustomerCountry
}

// ResolveRate returns the VAT rate for a line. No resolvable country means no VAT.
func ResolveRate(q RateQuery) decimal.Decimal {
	country := q.Country()
	if country.IsZero() {
		return decimal.Zero
	}
	if q.ProductVatProfileID != "" {
		for _, p := range q.Profiles {
			if p.ID != q.ProductVatProfileID {
				continue
			}
			if rate, ok := p.RateFor(country); ok {
				return rate
			}
			break
		}
	}
	return DefaultRate(country)
}

// Apply adds VAT to an exclusive amount.
func Apply(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Add(rate.Div(hundred)))
}

// Extract removes VAT from an inclusive amount.
func Extract(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Div(decimal.NewFromInt(1).Add(rate.Div(hundred)))
}

// Amount is the VAT due on an exclusive amount.
func Amount(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}
