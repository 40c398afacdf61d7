package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"settlement/internal/currency"
)

func TestLoadReadsSettlementFromEnv(t *testing.T) {
	t.Setenv("SHOP_COUNTRY", "FR")
	t.Setenv("VAT_SINGLE_COUNTRY", "true")
	t.Setenv("MAIN_CURRENCY", "EUR")
	t.Setenv("LOCK_ITEMS_AFTER_PRINT", "true")
	t.Setenv("CASH_DELTA_JUSTIFICATION_MANDATORY", "true")
	t.Setenv("CASH_DELTA_TOLERANCE", "-0.05")
	t.Setenv("PAYMENT_EXPIRY", "30m")

	cfg := Load()

	assert.EqualValues(t, "FR", cfg.Settlement.ShopCountry)
	assert.True(t, cfg.Settlement.VatSingleCountry)
	assert.Equal(t, currency.EUR, cfg.Settlement.MainCurrency)
	assert.True(t, cfg.Settlement.LockItemsAfterPrint)
	assert.True(t, cfg.Settlement.CashDeltaJustificationMandatory)
	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.Settlement.CashDeltaTolerance))
	assert.Equal(t, 30*time.Minute, cfg.Settlement.PaymentExpiry)
}

func TestLoadKeepsDefaultsOnInvalidValues(t *testing.T) {
	t.Setenv("SHOP_COUNTRY", "Switzerland")
	t.Setenv("MAIN_CURRENCY", "DOGE")

	cfg := Load()

	assert.EqualValues(t, "CH", cfg.Settlement.ShopCountry)
	assert.Equal(t, currency.CHF, cfg.Settlement.MainCurrency)
	assert.Equal(t, 30, cfg.Settlement.PrintHistoryLimit)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
}
