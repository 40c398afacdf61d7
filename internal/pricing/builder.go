package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"settlement/internal/currency"
	"settlement/internal/vat"
	"settlement/pkg/apperror"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced input line. CustomPrice carries pay-what-you-want amounts.
type Line struct {
	ProductID          string
	Quantity           int
	FreeQuantity       int
	UnitPrice          currency.Money
	CustomPrice        *currency.Money
	DiscountPercentage decimal.Decimal
	VatProfileID       string
}

type VatContext struct {
	Profiles        []vat.Profile
	ShopCountry     vat.Country
	CustomerCountry vat.Country
	SingleCountry   bool
}

type Request struct {
	Lines []Line
	// Currency is the settlement currency, StorageCurrency the accounting one.
	Currency        currency.Code
	StorageCurrency currency.Code
	// Discount is a whole-order percentage applied after line discounts.
	Discount decimal.Decimal
	Vat      VatContext
	Rates    currency.RateTable
}

// Builder computes snapshots. It holds no state and is safe for concurrent use.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Validate reports malformed input as a validation error.
func (r Request) Validate() error {
	var fields []apperror.FieldError
	if len(r.Lines) == 0 {
		fields = append(fields, apperror.FieldError{Field: "lines", Message: "must not be empty"})
	}
	if !r.Currency.Valid() {
		fields = append(fields, apperror.FieldError{Field: "currency", Message: "unsupported currency"})
	}
	if !r.StorageCurrency.Valid() {
		fields = append(fields, apperror.FieldError{Field: "storageCurrency", Message: "unsupported currency"})
	}
	if !validPercentage(r.Discount) {
		fields = append(fields, apperror.FieldError{Field: "discount", Message: "must be between 0 and 100"})
	}
	for i, l := range r.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		if l.ProductID == "" {
			fields = append(fields, apperror.FieldError{Field: prefix + "productId", Message: "is required"})
		}
		if l.Quantity <= 0 {
			fields = append(fields, apperror.FieldError{Field: prefix + "quantity", Message: "must be greater than 0"})
		}
		if l.FreeQuantity < 0 || l.FreeQuantity > l.Quantity {
			fields = append(fields, apperror.FieldError{Field: prefix + "freeQuantity", Message: "must be between 0 and quantity"})
		}
		price := l.price()
		if !price.Currency.Valid() {
			fields = append(fields, apperror.FieldError{Field: prefix + "unitPrice", Message: "unsupported currency"})
		}
		if price.Amount.IsNegative() {
			fields = append(fields, apperror.FieldError{Field: prefix + "unitPrice", Message: "must not be negative"})
		}
		if !validPercentage(l.DiscountPercentage) {
			fields = append(fields, apperror.FieldError{Field: prefix + "discountPercentage", Message: "must be between 0 and 100"})
		}
	}
	if len(fields) > 0 {
		return apperror.Validation("invalid pricing request", fields...)
	}
	return nil
}

// Build prices every line and aggregates the order. Inputs are never mutated
// and identical requests produce identical results.
func (b *Builder) Build(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{
		Lines: make([]LineResult, 0, len(req.Lines)),
		Totals: TotalsSnapshot{
			Main:    emptyTotals(req.Currency),
			Storage: emptyTotals(req.StorageCurrency),
		},
	}
	groups := map[string]*VatLine{}

	for _, l := range req.Lines {
		price := l.price()
		q := vat.RateQuery{
			ProductVatProfileID: l.VatProfileID,
			Profiles:            req.Vat.Profiles,
			ShopCountry:         req.Vat.ShopCountry,
			CustomerCountry:     req.Vat.CustomerCountry,
			SingleCountry:       req.Vat.SingleCountry,
		}
		country := q.Country()
		rate := vat.ResolveRate(q)
		billable := decimal.NewFromInt(int64(l.Quantity - l.FreeQuantity))

		main, mainVat := priceLine(price, req.Currency, billable, l.DiscountPercentage, req.Discount, rate, req.Rates)
		storage, storageVat := priceLine(price, req.StorageCurrency, billable, l.DiscountPercentage, req.Discount, rate, req.Rates)

		res.Lines = append(res.Lines, LineResult{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			FreeQuantity: l.FreeQuantity,
			VatCountry:   country,
			VatRate:      rate,
			Snapshot:     CurrencySnapshot{Main: main, Storage: storage},
		})

		res.Totals.Main = res.Totals.Main.add(main, billable, mainVat)
		res.Totals.Storage = res.Totals.Storage.add(storage, billable, storageVat)

		if country.IsZero() {
			continue
		}
		key := string(country) + "|" + rate.String()
		g, ok := groups[key]
		if !ok {
			g = &VatLine{Country: country, Rate: rate, Price: decimal.Zero, StoragePrice: decimal.Zero}
			groups[key] = g
		}
		g.Price = g.Price.Add(mainVat)
		g.StoragePrice = g.StoragePrice.Add(storageVat)
	}

	res.Vat = make([]VatLine, 0, len(groups))
	for _, g := range groups {
		res.Vat = append(res.Vat, *g)
	}
	sort.Slice(res.Vat, func(i, j int) bool {
		if res.Vat[i].Country != res.Vat[j].Country {
			return res.Vat[i].Country < res.Vat[j].Country
		}
		return res.Vat[i].Rate.LessThan(res.Vat[j].Rate)
	})

	return res, nil
}

func (l Line) price() currency.Money {
	if l.CustomPrice != nil {
		return *l.CustomPrice
	}
	return l.UnitPrice
}

func priceLine(price currency.Money, target currency.Code, billable, lineDiscount, orderDiscount, rate decimal.Decimal, rates currency.RateTable) (PriceSet, decimal.Decimal) {
	unit := currency.Convert(price.Amount, price.Currency, target, rates)
	gross := unit.Mul(billable)
	discount := currency.Round(gross.Mul(lineDiscount).Div(hundred), target)
	afterLine := gross.Sub(discount)
	orderPart := currency.Round(afterLine.Mul(orderDiscount).Div(hundred), target)
	discount = discount.Add(orderPart)
	net := gross.Sub(discount)

	set := PriceSet{Currency: target, UnitPrice: unit, TotalPrice: net}
	if !discount.IsZero() {
		set.Discount = &discount
	}
	return set, currency.Round(vat.Amount(net, rate), target)
}

func emptyTotals(c currency.Code) Totals {
	return Totals{
		Currency: c,
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Net:      decimal.Zero,
		Vat:      decimal.Zero,
		Total:    decimal.Zero,
	}
}

func (t Totals) add(line PriceSet, billable, vatAmount decimal.Decimal) Totals {
	t.Subtotal = t.Subtotal.Add(line.UnitPrice.Mul(billable))
	if line.Discount != nil {
		t.Discount = t.Discount.Add(*line.Discount)
	}
	t.Net = t.Net.Add(line.TotalPrice)
	t.Vat = t.Vat.Add(vatAmount)
	t.Total = t.Net.Add(t.Vat)
	return t
}

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}
