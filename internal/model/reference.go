package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/currency"
	"settlement/internal/vat"
)

// VatProfile overrides statutory VAT rates for a group of products.
type VatProfile struct {
	ID        uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string           `gorm:"type:varchar(100);not null" json:"name"`
	Rates     []VatProfileRate `gorm:"foreignKey:ProfileID" json:"rates"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type VatProfileRate struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProfileID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_profile_country" json:"profile_id"`
	Country   vat.Country     `gorm:"type:varchar(2);not null;uniqueIndex:idx_profile_country" json:"country"`
	Rate      decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"rate"`
}

func (p *VatProfile) ToVat() vat.Profile {
	rates := make([]vat.CountryRate, 0, len(p.Rates))
	for _, r := range p.Rates {
		rates = append(rates, vat.CountryRate{Country: r.Country, Rate: r.Rate})
	}
	return vat.Profile{ID: p.ID.String(), Name: p.Name, Rates: rates}
}

// ExchangeRate is the price of one BTC in a currency.
type ExchangeRate struct {
	Currency   currency.Code   `gorm:"type:varchar(4);primaryKey" json:"currency"`
	PerBitcoin decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"per_bitcoin"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

const (
	CounterOrderNumber   = "order_number"
	CounterInvoiceNumber = "invoice_number"
)

// Counter backs monotonic numbering of orders and invoices.
type Counter struct {
	Name  string `gorm:"type:varchar(50);primaryKey" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}
