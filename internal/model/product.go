package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/currency"
)

// Product is the catalog entry tabs and carts reference by ID.
type Product struct {
	ID                  string          `gorm:"type:varchar(100);primaryKey" json:"id"`
	Name                string          `gorm:"type:varchar(255);not null" json:"name"`
	Price               decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	Currency            currency.Code   `gorm:"type:varchar(4);not null" json:"currency"`
	VatProfileID        *uuid.UUID      `gorm:"type:uuid;index" json:"vat_profile_id"`
	MaxQuantityPerOrder int             `gorm:"type:int;default:0;not null" json:"max_quantity_per_order"` // 0 means unlimited
	PrintTag            string          `gorm:"type:varchar(50);index" json:"print_tag"`                  // kitchen station
	PayWhatYouWant      bool            `gorm:"default:false" json:"pay_what_you_want"`
	Shipping            bool            `gorm:"default:false" json:"shipping"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	DeletedAt           gorm.DeletedAt  `gorm:"index" json:"-"`
}

// UnitPrice returns the catalog price as money.
func (p *Product) UnitPrice() currency.Money {
	return currency.Money{Amount: p.Price, Currency: p.Currency}
}

// Allows reports whether quantity fits the per-order cap.
func (p *Product) Allows(quantity int) bool {
	return p.MaxQuantityPerOrder <= 0 || quantity <= p.MaxQuantityPerOrder
}
