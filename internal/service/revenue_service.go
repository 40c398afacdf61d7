package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/pkg/apperror"
)

// --- DTOs ---

type RevenueDataPoint struct {
	Period   string                                  `json:"period"`
	Currency currency.Code                           `json:"currency"`
	Total    decimal.Decimal                         `json:"total"`
	Cashback decimal.Decimal                         `json:"cashback"`
	Payments int                                     `json:"payments"`
	ByMethod map[model.PaymentMethod]decimal.Decimal `json:"by_method"`
}

type RevenueFilter struct {
	GroupBy   string `form:"group_by"`   // day, week, month
	StartDate string `form:"start_date"` // RFC3339
	EndDate   string `form:"end_date"`   // RFC3339
}

// --- Interface ---

// RevenueService aggregates settled payments per period in the main currency.
type RevenueService interface {
	GetRevenueStatistics(ctx context.Context, filter RevenueFilter) ([]RevenueDataPoint, error)
}

type revenueService struct {
	stores Stores
	rates  RateService
	cfg    config.Settlement
	now    func() time.Time
}

func NewRevenueService(stores Stores, rates RateService, cfg config.Settlement) RevenueService {
	return &revenueService{stores: stores, rates: rates, cfg: cfg, now: time.Now}
}

// --- Implementation ---

func (s *revenueService) GetRevenueStatistics(ctx context.Context, filter RevenueFilter) ([]RevenueDataPoint, error) {
	groupBy := filter.GroupBy
	switch groupBy {
	case "day", "week", "month":
	case "":
		groupBy = "month"
	default:
		return nil, apperror.Validation("invalid group_by", apperror.FieldError{Field: "group_by", Message: "must be day, week or month"})
	}

	end := s.now()
	if filter.EndDate != "" {
		t, err := time.Parse(time.RFC3339, filter.EndDate)
		if err != nil {
			return nil, apperror.Validation("invalid end_date", apperror.FieldError{Field: "end_date", Message: "must be RFC3339"})
		}
		end = t
	}
	start := end.AddDate(0, -1, 0)
	if filter.StartDate != "" {
		t, err := time.Parse(time.RFC3339, filter.StartDate)
		if err != nil {
			return nil, apperror.Validation("invalid start_date", apperror.FieldError{Field: "start_date", Message: "must be RFC3339"})
		}
		start = t
	}
	if start.After(end) {
		return nil, apperror.Validation("start_date is after end_date")
	}

	payments, err := s.stores.Payments.ListPaidBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	rates := s.rates.Table(ctx)
	target := s.cfg.MainCurrency

	byPeriod := map[string]*RevenueDataPoint{}
	for _, p := range payments {
		if p.PaidAt == nil {
			continue
		}
		period := truncate(*p.PaidAt, groupBy).Format("2006-01-02")
		point, ok := byPeriod[period]
		if !ok {
			point = &RevenueDataPoint{
				Period:   period,
				Currency: target,
				Total:    decimal.Zero,
				Cashback: decimal.Zero,
				ByMethod: map[model.PaymentMethod]decimal.Decimal{},
			}
			byPeriod[period] = point
		}
		amount := sessionAmount(p.Amount.Main, p.Amount.Storage, target, rates)
		point.Total = point.Total.Add(amount)
		point.ByMethod[p.Method] = point.ByMethod[p.Method].Add(amount)
		point.Payments++
		if p.Cashback != nil {
			point.Cashback = point.Cashback.Add(currency.Convert(*p.Cashback, p.Amount.Main.Currency, target, rates))
		}
	}

	res := make([]RevenueDataPoint, 0, len(byPeriod))
	for _, point := range byPeriod {
		point.Total = currency.Round(point.Total, target)
		point.Cashback = currency.Round(point.Cashback, target)
		for m, v := range point.ByMethod {
			point.ByMethod[m] = currency.Round(v, target)
		}
		res = append(res, *point)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Period < res[j].Period })
	return res, nil
}

// truncate returns the UTC start of the day, ISO week or month containing t.
func truncate(t time.Time, groupBy string) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch groupBy {
	case "week":
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}
