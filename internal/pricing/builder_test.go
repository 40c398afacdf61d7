package pricing

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/currency"
	"settlement/internal/vat"
	"settlement/pkg/apperror"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func chf(s string) currency.Money {
	return currency.Money{Amount: d(s), Currency: currency.CHF}
}

func swissContext() VatContext {
	return VatContext{
		ShopCountry: "CH",
		Profiles: []vat.Profile{
			{ID: "legacy", Rates: []vat.CountryRate{{Country: "CH", Rate: d("7.7")}}},
			{ID: "food", Rates: []vat.CountryRate{{Country: "CH", Rate: d("2.6")}}},
		},
	}
}

func TestBuildSingleLineWithVat(t *testing.T) {
	res, err := NewBuilder().Build(Request{
		Lines:           []Line{{ProductID: "coffee", Quantity: 1, UnitPrice: chf("10.00"), VatProfileID: "legacy"}},
		Currency:        currency.CHF,
		StorageCurrency: currency.CHF,
		Vat:             swissContext(),
	})
	require.NoError(t, err)

	require.Len(t, res.Lines, 1)
	assert.Equal(t, "10", res.Lines[0].Snapshot.Main.TotalPrice.String())
	assert.Nil(t, res.Lines[0].Snapshot.Main.Discount)

	require.Len(t, res.Vat, 1)
	assert.Equal(t, vat.Country("CH"), res.Vat[0].Country)
	assert.Equal(t, "7.7", res.Vat[0].Rate.String())
	assert.Equal(t, "0.77", res.Vat[0].Price.String())

	assert.Equal(t, "10", res.Totals.Main.Net.String())
	assert.Equal(t, "0.77", res.Totals.Main.Vat.String())
	assert.Equal(t, "10.77", res.Totals.Main.Total.String())
	assert.True(t, vat.Apply(d("10.00"), d("7.7")).Equal(res.Totals.Main.Total))
}

func TestBuildAppliesFreeUnitsAndDiscountsInOrder(t *testing.T) {
	res, err := NewBuilder().Build(Request{
		Lines: []Line{{
			ProductID:          "bagel",
			Quantity:           3,
			FreeQuantity:       1,
			UnitPrice:          chf("4.50"),
			DiscountPercentage: d("10"),
			VatProfileID:       "food",
		}},
		Currency:        currency.CHF,
		StorageCurrency: currency.CHF,
		Discount:        d("50"),
		Vat:             swissContext(),
	})
	require.NoError(t, err)

	main := res.Lines[0].Snapshot.Main
	assert.Equal(t, "4.5", main.UnitPrice.String())
	// 9.00 gross, 0.90 line discount, then 4.05 off the remaining 8.10
	assert.Equal(t, "4.05", main.TotalPrice.String())
	require.NotNil(t, main.Discount)
	assert.Equal(t, "4.95", main.Discount.String())

	assert.Equal(t, "9", res.Totals.Main.Subtotal.String())
	assert.Equal(t, "4.95", res.Totals.Main.Discount.String())
	assert.Equal(t, "0.1053", res.Totals.Main.Vat.String())
	assert.Equal(t, "4.1553", res.Totals.Main.Total.String())
}

func TestBuildConvertsStorageIndependently(t *testing.T) {
	rates := currency.RateTable{Rates: map[currency.Code]decimal.Decimal{
		currency.CHF: d("50000"),
		currency.EUR: d("52000"),
	}}
	res, err := NewBuilder().Build(Request{
		Lines:           []Line{{ProductID: "tea", Quantity: 2, UnitPrice: chf("5")}},
		Currency:        currency.EUR,
		StorageCurrency: currency.CHF,
		Vat:             VatContext{ShopCountry: "CH"},
		Rates:           rates,
	})
	require.NoError(t, err)

	snap := res.Lines[0].Snapshot
	assert.Equal(t, currency.EUR, snap.Main.Currency)
	assert.Equal(t, "5.2", snap.Main.UnitPrice.String())
	assert.Equal(t, "10.4", snap.Main.TotalPrice.String())
	assert.Equal(t, currency.CHF, snap.Storage.Currency)
	assert.Equal(t, "10", snap.Storage.TotalPrice.String())
	assert.Equal(t, "0.81", res.Vat[0].StoragePrice.String())
}

func TestBuildGroupsVatByCountryAndRate(t *testing.T) {
	res, err := NewBuilder().Build(Request{
		Lines: []Line{
			{ProductID: "wine", Quantity: 1, UnitPrice: chf("20")},
			{ProductID: "bread", Quantity: 1, UnitPrice: chf("4"), VatProfileID: "food"},
			{ProductID: "beer", Quantity: 2, UnitPrice: chf("5")},
		},
		Currency:        currency.CHF,
		StorageCurrency: currency.CHF,
		Vat:             swissContext(),
	})
	require.NoError(t, err)

	require.Len(t, res.Vat, 2)
	assert.Equal(t, "2.6", res.Vat[0].Rate.String())
	assert.Equal(t, "0.104", res.Vat[0].Price.String())
	assert.Equal(t, "8.1", res.Vat[1].Rate.String())
	assert.Equal(t, "2.43", res.Vat[1].Price.String())
}

func TestBuildIsDeterministicAndDoesNotMutateInput(t *testing.T) {
	custom := chf("3.333333")
	req := Request{
		Lines: []Line{
			{ProductID: "tip", Quantity: 1, CustomPrice: &custom},
			{ProductID: "bread", Quantity: 2, UnitPrice: chf("4"), VatProfileID: "food"},
			{ProductID: "wine", Quantity: 1, UnitPrice: chf("20")},
		},
		Currency:        currency.CHF,
		StorageCurrency: currency.CHF,
		Discount:        d("12.5"),
		Vat:             swissContext(),
	}

	first, err := NewBuilder().Build(req)
	require.NoError(t, err)
	second, err := NewBuilder().Build(req)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Equal(t, "3.333333", custom.Amount.String())
	assert.Equal(t, "3.3333", first.Lines[0].Snapshot.Main.UnitPrice.String())
}

func TestBuildRejectsMalformedInput(t *testing.T) {
	cases := map[string]Request{
		"empty":          {Currency: currency.CHF, StorageCurrency: currency.CHF},
		"zero quantity":  {Lines: []Line{{ProductID: "x", UnitPrice: chf("1")}}, Currency: currency.CHF, StorageCurrency: currency.CHF},
		"discount > 100": {Lines: []Line{{ProductID: "x", Quantity: 1, UnitPrice: chf("1")}}, Currency: currency.CHF, StorageCurrency: currency.CHF, Discount: d("101")},
		"free > quantity": {
			Lines:    []Line{{ProductID: "x", Quantity: 1, FreeQuantity: 2, UnitPrice: chf("1")}},
			Currency: currency.CHF, StorageCurrency: currency.CHF,
		},
		"bad currency": {Lines: []Line{{ProductID: "x", Quantity: 1, UnitPrice: chf("1")}}, Currency: "DOGE", StorageCurrency: currency.CHF},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewBuilder().Build(req)
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		})
	}
}

func TestNewAmountSnapshot(t *testing.T) {
	snap := NewAmountSnapshot(chf("30.00"), currency.SAT, currency.RateTable{Rates: map[currency.Code]decimal.Decimal{currency.CHF: d("60000")}})
	assert.Equal(t, "30", snap.Main.Amount.String())
	assert.Equal(t, currency.SAT, snap.Storage.Currency)
	assert.Equal(t, "50000", snap.Storage.Amount.String())
}
