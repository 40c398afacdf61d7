package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/internal/pricing"
	"settlement/internal/vat"
	"settlement/pkg/apperror"
)

type quoteLine struct {
	Product         model.Product
	Quantity        int
	FreeQuantity    int
	FreeAllowanceID *uuid.UUID
	CustomPrice     *currency.Money
	Variations      model.Variations
}

// quoter prices lines against the current rates and VAT profiles.
type quoter struct {
	catalog ProductCatalog
	rates   RateService
	builder *pricing.Builder
	cfg     config.Settlement
}

func (q *quoter) quote(ctx context.Context, lines []quoteLine, discount decimal.Decimal, customer vat.Country) (pricing.Result, currency.RateTable, error) {
	rates := q.rates.Table(ctx)
	profiles, err := q.rates.VatProfiles(ctx)
	if err != nil {
		return pricing.Result{}, rates, err
	}

	req := pricing.Request{
		Lines:           make([]pricing.Line, 0, len(lines)),
		Currency:        q.cfg.MainCurrency,
		StorageCurrency: q.cfg.ReferenceCurrency,
		Discount:        discount,
		Vat: pricing.VatContext{
			Profiles:        profiles,
			ShopCountry:     q.cfg.ShopCountry,
			CustomerCountry: customer,
			SingleCountry:   q.cfg.VatSingleCountry,
		},
		Rates: rates,
	}
	for _, l := range lines {
		line := pricing.Line{
			ProductID:    l.Product.ID,
			Quantity:     l.Quantity,
			FreeQuantity: l.FreeQuantity,
			UnitPrice:    l.Product.UnitPrice(),
			CustomPrice:  l.CustomPrice,
		}
		if l.Product.VatProfileID != nil {
			line.VatProfileID = l.Product.VatProfileID.String()
		}
		req.Lines = append(req.Lines, line)
	}

	res, err := q.builder.Build(req)
	return res, rates, err
}

// products loads every referenced product, failing on the first missing one.
func (q *quoter) products(ctx context.Context, ids []string) (map[string]model.Product, error) {
	found, err := q.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Product, len(found))
	for _, p := range found {
		out[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, apperror.NotFound("product " + id)
		}
	}
	return out, nil
}
