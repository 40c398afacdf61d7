package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the e-commerce counterpart of a tab, owned by one browser session.
type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"session_id"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Items     []CartItem `gorm:"foreignKey:CartID" json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartID           uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_cart_line" json:"cart_id"`
	ProductID        string           `gorm:"type:varchar(100);not null;uniqueIndex:idx_cart_line" json:"product_id"`
	VariationKey     string           `gorm:"type:varchar(255);not null;default:'';uniqueIndex:idx_cart_line" json:"-"`
	ChosenVariations Variations       `gorm:"type:jsonb;serializer:json" json:"chosen_variations,omitempty"`
	Quantity         int              `gorm:"type:int;not null" json:"quantity"`
	CustomPrice      *decimal.Decimal `gorm:"type:decimal(24,8)" json:"custom_price,omitempty"` // pay-what-you-want, in product currency
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
