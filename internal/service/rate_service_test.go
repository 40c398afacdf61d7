package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/pkg/apperror"
)

func TestSetRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rates.SetRate(ctx, SetRateRequest{Currency: "BTC", PerBitcoin: dec("1")})
	requireKind(t, err, apperror.KindValidation)
	_, err = f.rates.SetRate(ctx, SetRateRequest{Currency: "EUR", PerBitcoin: dec("0")})
	requireKind(t, err, apperror.KindValidation)
	_, err = f.rates.SetRate(ctx, SetRateRequest{Currency: "DOGE", PerBitcoin: dec("1")})
	requireKind(t, err, apperror.KindValidation)

	assert.Empty(t, f.rates.Table(ctx).Rates)

	_, err = f.rates.SetRate(ctx, SetRateRequest{Currency: "EUR", PerBitcoin: dec("45000")})
	require.NoError(t, err)

	table := f.rates.Table(ctx)
	assert.True(t, dec("45000").Equal(table.Rates[currency.EUR]))
}

func TestOrderSnapshotsBothCurrencies(t *testing.T) {
	f := newFixture(t, withSettlement(func(cfg *config.Settlement) {
		cfg.MainCurrency = currency.EUR
	}))
	ctx := context.Background()
	_, err := f.rates.SetRate(ctx, SetRateRequest{Currency: "CHF", PerBitcoin: dec("50000")})
	require.NoError(t, err)
	_, err = f.rates.SetRate(ctx, SetRateRequest{Currency: "EUR", PerBitcoin: dec("45000")})
	require.NoError(t, err)

	order := f.tabOrder(t, "table-1", "dinner", 1, CreateOrderRequest{Method: "cash"})

	assert.Equal(t, currency.EUR, order.Currency)
	assert.True(t, dec("45").Equal(order.Totals.Main.Total), order.Totals.Main.Total.String())
	assert.Equal(t, currency.CHF, order.Totals.Storage.Currency)
	assert.True(t, dec("50").Equal(order.Totals.Storage.Total), order.Totals.Storage.Total.String())

	p := order.Payments[0]
	assert.True(t, dec("45").Equal(p.Amount.Main.Amount))
	assert.True(t, dec("50").Equal(p.Amount.Storage.Amount), p.Amount.Storage.String())
}

type brokenRates struct{}

func (brokenRates) List(context.Context) ([]model.ExchangeRate, error) {
	return nil, errors.New("connection reset")
}

func (brokenRates) Upsert(context.Context, *model.ExchangeRate) error {
	return errors.New("connection reset")
}

func TestRateTableSurvivesStoreOutage(t *testing.T) {
	log, hook := test.NewNullLogger()
	f := newFixture(t)
	rates := NewRateService(brokenRates{}, f.repos.VatProfiles, log)

	table := rates.Table(context.Background())
	assert.Empty(t, table.Rates)
	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, "Using last known exchange rates", hook.LastEntry().Message)
}

func TestStaleRatesDoNotDeadlockTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rates.SetRate(ctx, SetRateRequest{Currency: "EUR", PerBitcoin: dec("45000")})
	require.NoError(t, err)
	openSession(t, f, "100")
	_, err = f.tabs.AddItem(ctx, "table-1", AddTabItemRequest{ProductID: "coffee"})
	require.NoError(t, err)

	// every read finds the cache expired
	var calls atomic.Int64
	base := time.Now()
	f.rates.(*rateService).now = func() time.Time {
		return base.Add(time.Duration(calls.Add(1)) * 2 * rateCacheTTL)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := f.tabs.GetOrderTab(ctx, "table-1"); err != nil {
					errs <- err
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := f.sessions.GenerateXTicket(ctx, staff); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("rate reads and transactions blocked each other")
	}
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Positive(t, calls.Load())
}
