package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRates() RateTable {
	return RateTable{Rates: map[Code]decimal.Decimal{
		CHF: d("50000"),
		EUR: d("52000"),
		XOF: d("34000000"),
	}}
}

func TestConvertSameCurrencyRoundsToStoragePrecision(t *testing.T) {
	for _, c := range All() {
		amount := d("12.345678912")
		assert.True(t, Round(amount, c).Equal(Convert(amount, c, c, testRates())), "currency %s", c)
		assert.True(t, Round(amount, c).Equal(Convert(amount, c, c, RateTable{})), "currency %s without rates", c)
	}
}

func TestConvertThroughBitcoin(t *testing.T) {
	rates := testRates()

	assert.Equal(t, "10.4", Convert(d("10"), CHF, EUR, rates).String())
	assert.Equal(t, "0.0002", Convert(d("10"), CHF, BTC, rates).String())
	assert.Equal(t, "20000", Convert(d("10"), CHF, SAT, rates).String())
	assert.Equal(t, "10", Convert(d("20000"), SAT, CHF, rates).String())
	assert.Equal(t, "6800", Convert(d("10"), CHF, XOF, rates).String())
}

func TestConvertFailsSoftWithoutRates(t *testing.T) {
	rates := RateTable{Rates: map[Code]decimal.Decimal{CHF: d("50000")}}

	assert.Equal(t, "12.3457", Convert(d("12.345678"), CHF, USD, rates).String())
	assert.Equal(t, "12.3457", Convert(d("12.345678"), USD, CHF, RateTable{}).String())
}

func TestConvertRoundTripStaysWithinStorageTolerance(t *testing.T) {
	rates := testRates()
	amount := d("19.9")

	back := Convert(Convert(amount, CHF, EUR, rates), EUR, CHF, rates)
	assert.True(t, back.Sub(amount).Abs().LessThanOrEqual(d("0.0001")), "got %s", back)
}

func TestParse(t *testing.T) {
	code, err := Parse(" chf ")
	require.NoError(t, err)
	assert.Equal(t, CHF, code)

	_, err = Parse("DOGE")
	assert.Error(t, err)
}

func TestMoneyArithmetic(t *testing.T) {
	sum, err := NewMoney(d("200"), CHF).Add(NewMoney(d("50.00005"), CHF))
	require.NoError(t, err)
	assert.Equal(t, "250.0001 CHF", sum.Amount.String()+" "+string(sum.Currency))
	assert.Equal(t, "250.00 CHF", sum.String())

	_, err = NewMoney(d("1"), CHF).Sub(NewMoney(d("1"), EUR))
	assert.Error(t, err)
}
