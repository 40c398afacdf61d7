package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/currency"
	"settlement/internal/pricing"
	"settlement/internal/vat"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
)

type Address struct {
	Name    string      `json:"name"`
	Street  string      `json:"street"`
	City    string      `json:"city"`
	Zip     string      `json:"zip"`
	Country vat.Country `json:"country"`
}

// Order is created once from a tab or cart and never re-priced.
type Order struct {
	ID                    uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Number                int64                  `gorm:"uniqueIndex;not null" json:"number"`
	Status                OrderStatus            `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Items                 []OrderItem            `gorm:"foreignKey:OrderID" json:"items"`
	Payments              []Payment              `gorm:"foreignKey:OrderID" json:"payments"`
	Notes                 []OrderNote            `gorm:"foreignKey:OrderID" json:"notes"`
	Currency              currency.Code          `gorm:"type:varchar(4);not null" json:"currency"`
	Totals                pricing.TotalsSnapshot `gorm:"type:jsonb;serializer:json" json:"currency_snapshot"`
	Vat                   []pricing.VatLine      `gorm:"type:jsonb;serializer:json" json:"vat"`
	DiscountPercentage    *decimal.Decimal       `gorm:"type:decimal(7,4)" json:"discount_percentage,omitempty"`
	DiscountJustification string                 `gorm:"type:text" json:"discount_justification,omitempty"`
	ShippingAddress       *Address               `gorm:"type:jsonb;serializer:json" json:"shipping_address,omitempty"`
	CustomerCountry       vat.Country            `gorm:"type:varchar(2)" json:"customer_country,omitempty"`
	SessionID             string                 `gorm:"type:varchar(100);index" json:"session_id"`
	UserID                *uuid.UUID             `gorm:"type:uuid;index" json:"user_id,omitempty"`
	UserRoleID            string                 `gorm:"type:varchar(50)" json:"user_role_id,omitempty"`
	ExpectedShares        int                    `gorm:"type:int;not null;default:0" json:"expected_shares,omitempty"` // > 0 in shares mode
	TabSlug               *string                `gorm:"type:varchar(100);index" json:"tab_slug,omitempty"`
	CanceledAt            *time.Time             `json:"canceled_at,omitempty"`
	CreatedAt             time.Time              `gorm:"index" json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

func (o *Order) SharesMode() bool {
	return o.ExpectedShares > 0
}

// Total is the amount the customer owes, VAT included.
func (o *Order) Total() currency.Money {
	return currency.Money{Amount: o.Totals.Main.Total, Currency: o.Totals.Main.Currency}
}

// Identity returns who placed the order.
func (o *Order) Identity() Identity {
	return Identity{SessionID: o.SessionID, UserID: o.UserID, UserRoleID: o.UserRoleID}
}

// OrderItem is a frozen line of an order.
type OrderItem struct {
	ID              uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID         uuid.UUID                `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID       string                   `gorm:"type:varchar(100);not null;index" json:"product_id"`
	Name            string                   `gorm:"type:varchar(255)" json:"name"`
	PrintTag        string                   `gorm:"type:varchar(50)" json:"print_tag,omitempty"`
	Quantity        int                      `gorm:"type:int;not null" json:"quantity"`
	FreeQuantity    int                      `gorm:"type:int;not null;default:0" json:"free_quantity"`
	FreeAllowanceID *uuid.UUID               `gorm:"type:uuid" json:"free_allowance_id,omitempty"`
	VatCountry      vat.Country              `gorm:"type:varchar(2)" json:"vat_country,omitempty"`
	VatRate         decimal.Decimal          `gorm:"type:decimal(7,4);not null" json:"vat_rate"`
	Snapshot        pricing.CurrencySnapshot `gorm:"type:jsonb;serializer:json" json:"currency_snapshot"`
	Variations      Variations               `gorm:"type:jsonb;serializer:json" json:"chosen_variations,omitempty"`
}

type OrderNote struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	SessionID string     `gorm:"type:varchar(100)" json:"session_id"`
	UserID    *uuid.UUID `gorm:"type:uuid" json:"user_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
