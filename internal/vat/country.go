package vat

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Country is an ISO 3166-1 alpha-2 code.
type Country string

// ParseCountry validates a country code at the boundary.
func ParseCountry(raw string) (Country, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 2 {
		return "", fmt.Errorf("invalid country code %q", raw)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid country code %q", raw)
		}
	}
	return Country(code), nil
}

func (c Country) IsZero() bool {
	return c == ""
}

// statutory holds the standard VAT rate in percent per country.
var statutory = map[Country]decimal.Decimal{
	"AT": decimal.NewFromInt(20),
	"BE": decimal.NewFromInt(21),
	"BG": decimal.NewFromInt(20),
	"CH": decimal.RequireFromString("8.1"),
	"CI": decimal.NewFromInt(18),
	"CM": decimal.RequireFromString("19.25"),
	"CY": decimal.NewFromInt(19),
	"CZ": decimal.NewFromInt(21),
	"DE": decimal.NewFromInt(19),
	"DK": decimal.NewFromInt(25),
	"EE": decimal.NewFromInt(22),
	"ES": decimal.NewFromInt(21),
	"FI": decimal.RequireFromString("25.5"),
	"FR": decimal.NewFromInt(20),
	"GB": decimal.NewFromInt(20),
	"GR": decimal.NewFromInt(24),
	"HR": decimal.NewFromInt(25),
	"HU": decimal.NewFromInt(27),
	"IE": decimal.NewFromInt(23),
	"IT": decimal.NewFromInt(22),
	"KE": decimal.NewFromInt(16),
	"LI": decimal.RequireFromString("8.1"),
	"LT": decimal.NewFromInt(21),
	"LU": decimal.NewFromInt(17),
	"LV": decimal.NewFromInt(21),
	"MT": decimal.NewFromInt(18),
	"NL": decimal.NewFromInt(21),
	"NO": decimal.NewFromInt(25),
	"PH": decimal.NewFromInt(12),
	"PL": decimal.NewFromInt(23),
	"PT": decimal.NewFromInt(23),
	"RO": decimal.NewFromInt(19),
	"SE": decimal.NewFromInt(25),
	"SI": decimal.NewFromInt(22),
	"SK": decimal.NewFromInt(23),
	"SN": decimal.NewFromInt(18),
	"UG": decimal.NewFromInt(18),
	"ZA": decimal.NewFromInt(15),
}

// DefaultRate returns the statutory rate of a country, or zero when unknown.
func DefaultRate(c Country) decimal.Decimal {
	if rate, ok := statutory[c]; ok {
		return rate
	}
	return decimal.Zero
}
