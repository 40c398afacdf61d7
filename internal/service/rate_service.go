package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/internal/repository"
	"settlement/internal/vat"
	"settlement/pkg/apperror"
)

const rateCacheTTL = time.Minute

type SetRateRequest struct {
	Currency   string          `json:"currency" binding:"required"`
	PerBitcoin decimal.Decimal `json:"per_bitcoin"`
}

// RateService exposes the latest exchange rates and VAT profiles to pricing.
type RateService interface {
	// Table never fails: when the store is unreachable it returns the last
	// known table, or an empty one, and pricing falls back to identity.
	Table(ctx context.Context) currency.RateTable
	VatProfiles(ctx context.Context) ([]vat.Profile, error)
	SetRate(ctx context.Context, req SetRateRequest) (*model.ExchangeRate, error)
}

type rateService struct {
	rates    repository.ExchangeRateRepository
	profiles repository.VatProfileRepository
	log      logrus.FieldLogger
	now      func() time.Time

	mu       sync.Mutex
	cached   currency.RateTable
	loadedAt time.Time
	gen      uint64
}

func NewRateService(rates repository.ExchangeRateRepository, profiles repository.VatProfileRepository, log logrus.FieldLogger) RateService {
	return &rateService{rates: rates, profiles: profiles, log: log, now: time.Now}
}

// Table reads the store without holding s.mu: transactional callers already
// hold store locks when they ask for rates.
func (s *rateService) Table(ctx context.Context) currency.RateTable {
	s.mu.Lock()
	now := s.now()
	if !s.loadedAt.IsZero() && now.Sub(s.loadedAt) < rateCacheTTL {
		table := s.cached
		s.mu.Unlock()
		return table
	}
	gen, last := s.gen, s.cached
	s.mu.Unlock()

	rows, err := s.rates.List(ctx)
	if err != nil {
		s.log.WithError(apperror.ExternalUnavailable("exchange rates", err)).Warn("Using last known exchange rates")
		return last
	}

	table := currency.RateTable{Rates: make(map[currency.Code]decimal.Decimal, len(rows))}
	for _, r := range rows {
		table.Rates[r.Currency] = r.PerBitcoin
		if r.UpdatedAt.After(table.FetchedAt) {
			table.FetchedAt = r.UpdatedAt
		}
	}

	s.mu.Lock()
	// a SetRate during the read makes this table stale already
	if s.gen == gen {
		s.cached, s.loadedAt = table, now
	}
	s.mu.Unlock()
	return table
}

func (s *rateService) VatProfiles(ctx context.Context) ([]vat.Profile, error) {
	rows, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]vat.Profile, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToVat())
	}
	return out, nil
}

// SetRate records a feed update and invalidates the cache.
func (s *rateService) SetRate(ctx context.Context, req SetRateRequest) (*model.ExchangeRate, error) {
	code, err := currency.Parse(req.Currency)
	if err != nil {
		return nil, apperror.Validation("unsupported currency", apperror.FieldError{Field: "currency", Message: "unsupported currency"})
	}
	if code == currency.BTC {
		return nil, apperror.Validation("BTC is the conversion base", apperror.FieldError{Field: "currency", Message: "must not be BTC"})
	}
	if !req.PerBitcoin.IsPositive() {
		return nil, apperror.Validation("rate must be positive", apperror.FieldError{Field: "per_bitcoin", Message: "must be greater than 0"})
	}

	rate := &model.ExchangeRate{Currency: code, PerBitcoin: req.PerBitcoin, UpdatedAt: s.now()}
	if err := s.rates.Upsert(ctx, rate); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.gen++
	s.mu.Unlock()
	return rate, nil
}
