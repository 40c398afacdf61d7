package model

import (
	"time"

	"github.com/google/uuid"
)

// Subscription grants its holder a number of free units on selected products.
type Subscription struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID      string          `gorm:"type:varchar(100);index" json:"session_id"`
	UserID         *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ProductID      string          `gorm:"type:varchar(100);not null" json:"product_id"`
	PaidUntil      time.Time       `gorm:"not null" json:"paid_until"`
	FreeAllowances []FreeAllowance `gorm:"foreignKey:SubscriptionID" json:"free_allowances"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FreeAllowance counts consumed free units of one product.
type FreeAllowance struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index" json:"subscription_id"`
	ProductID      string    `gorm:"type:varchar(100);not null;index" json:"product_id"`
	Total          int       `gorm:"type:int;not null" json:"total"`
	Used           int       `gorm:"type:int;not null;default:0;check:used >= 0" json:"used"`
}

func (a *FreeAllowance) Remaining() int {
	if n := a.Total - a.Used; n > 0 {
		return n
	}
	return 0
}
