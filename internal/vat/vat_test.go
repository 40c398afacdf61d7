package vat

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyAndAmount(t *testing.T) {
	assert.Equal(t, "10.77", Apply(d("10.00"), d("7.7")).Round(4).String())
	assert.Equal(t, "0.77", Amount(d("10.00"), d("7.7")).Round(4).String())
	assert.Equal(t, "10", Apply(d("10"), decimal.Zero).String())
}

func TestExtractInvertsApply(t *testing.T) {
	tolerance := d("0.0001")
	amounts := []string{"0", "0.01", "1", "10", "19.99", "123.4567", "99999.9999"}
	rates := []string{"0", "2.5", "7.7", "8.1", "19.25", "25.5"}

	for _, a := range amounts {
		for _, r := range rates {
			got := Extract(Apply(d(a), d(r)).Round(4), d(r)).Round(4)
			assert.True(t, got.Sub(d(a)).Abs().LessThanOrEqual(tolerance), "amount %s rate %s got %s", a, r, got)
		}
	}
}

func TestResolveRate(t *testing.T) {
	profiles := []Profile{
		{ID: "reduced", Rates: []CountryRate{{Country: "CH", Rate: d("2.6")}, {Country: "FR", Rate: d("5.5")}}},
		{ID: "exempt", Rates: []CountryRate{{Country: "CH", Rate: decimal.Zero}}},
	}

	cases := []struct {
		name  string
		query RateQuery
		want  string
	}{
		{"shop default", RateQuery{ShopCountry: "CH"}, "8.1"},
		{"customer country wins", RateQuery{ShopCountry: "CH", CustomerCountry: "FR"}, "20"},
		{"single country ignores customer", RateQuery{ShopCountry: "CH", CustomerCountry: "FR", SingleCountry: true}, "8.1"},
		{"profile custom rate", RateQuery{ProductVatProfileID: "reduced", Profiles: profiles, ShopCountry: "CH", CustomerCountry: "FR"}, "5.5"},
		{"profile without country falls back", RateQuery{ProductVatProfileID: "exempt", Profiles: profiles, ShopCountry: "CH", CustomerCountry: "DE"}, "19"},
		{"explicit zero rate", RateQuery{ProductVatProfileID: "exempt", Profiles: profiles, ShopCountry: "CH"}, "0"},
		{"unknown profile", RateQuery{ProductVatProfileID: "missing", Profiles: profiles, ShopCountry: "CH"}, "8.1"},
		{"no country", RateQuery{}, "0"},
		{"unknown country", RateQuery{ShopCountry: "ZZ"}, "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveRate(tc.query).String())
		})
	}
}

func TestParseCountry(t *testing.T) {
	c, err := ParseCountry("ch")
	require.NoError(t, err)
	assert.Equal(t, Country("CH"), c)

	_, err = ParseCountry("Switzerland")
	assert.Error(t, err)
	_, err = ParseCountry("C1")
	assert.Error(t, err)
}
