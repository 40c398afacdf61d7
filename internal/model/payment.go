package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/pricing"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank-transfer"
	PaymentMethodBitcoin      PaymentMethod = "bitcoin"
	PaymentMethodLightning    PaymentMethod = "lightning"
	PaymentMethodPointOfSale  PaymentMethod = "point-of-sale"
	PaymentMethodFree         PaymentMethod = "free"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch m := PaymentMethod(raw); m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodBitcoin,
		PaymentMethodLightning, PaymentMethodPointOfSale, PaymentMethodFree:
		return m, true
	}
	return "", false
}

// RequiresCheckout reports whether a processor checkout must be opened upfront.
func (m PaymentMethod) RequiresCheckout() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBitcoin, PaymentMethodLightning:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusCanceled PaymentStatus = "canceled"
)

func (s PaymentStatus) Terminal() bool {
	return s != PaymentStatusPending
}

type FailureReason string

const (
	FailureReasonFailed   FailureReason = "failed"
	FailureReasonExpired  FailureReason = "expired"
	FailureReasonCanceled FailureReason = "canceled"
	FailureReasonReplaced FailureReason = "replaced"
)

// Payment is one attempt to collect money for an order. Terminal payments are
// kept for audit; a replacement is a new row pointing back through ReplacedByID.
type Payment struct {
	ID               uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID          uuid.UUID              `gorm:"type:uuid;not null;index" json:"order_id"`
	Method           PaymentMethod          `gorm:"type:varchar(20);not null" json:"method"`
	PosSubtype       string                 `gorm:"type:varchar(50)" json:"pos_subtype,omitempty"`
	Processor        string                 `gorm:"type:varchar(50)" json:"processor,omitempty"`
	Status           PaymentStatus          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Amount           pricing.AmountSnapshot `gorm:"type:jsonb;serializer:json" json:"currency_snapshot"`
	CheckoutID       *string                `gorm:"type:varchar(255);uniqueIndex" json:"checkout_id,omitempty"`
	ExpiresAt        *time.Time             `gorm:"index" json:"expires_at,omitempty"`
	PaidAt           *time.Time             `gorm:"index" json:"paid_at,omitempty"`
	InvoiceNumber    *int64                 `gorm:"uniqueIndex" json:"invoice_number,omitempty"`
	InvoiceCreatedAt *time.Time             `json:"invoice_created_at,omitempty"`
	IsShare          bool                   `gorm:"default:false" json:"is_share"`
	Cashback         *decimal.Decimal       `gorm:"type:decimal(24,8)" json:"cashback,omitempty"` // change handed back, in the payment's main currency
	FailureReason    FailureReason          `gorm:"type:varchar(20)" json:"failure_reason,omitempty"`
	ReplacedByID     *uuid.UUID             `gorm:"type:uuid" json:"replaced_by_id,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Expired reports whether a pending payment passed its advisory deadline.
func (p *Payment) Expired(now time.Time) bool {
	return p.Status == PaymentStatusPending && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}
