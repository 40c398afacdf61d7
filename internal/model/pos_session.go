package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settlement/internal/currency"
)

type PosSessionStatus string

const (
	PosSessionActive PosSessionStatus = "active"
	PosSessionClosed PosSessionStatus = "closed"
)

// IncomeLine aggregates settled payments of one (method, subtype) bucket.
type IncomeLine struct {
	Method  PaymentMethod   `json:"method"`
	Subtype string          `json:"subtype,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Count   int             `json:"count"`
}

// OutcomeLine is cash taken out of the drawer during the session.
type OutcomeLine struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note,omitempty"`
}

// XTicket records an interim report generated while the session was active.
type XTicket struct {
	GeneratedAt time.Time       `json:"generated_at"`
	GeneratedBy string          `json:"generated_by"`
	Incomes     []IncomeLine    `json:"incomes"`
	Cashback    decimal.Decimal `json:"cashback"`
}

// PosSession is a cash-drawer session. It is never deleted: a closed session is
// the audit record of the day. Only one row may be active at a time.
type PosSession struct {
	ID                     uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Status                 PosSessionStatus `gorm:"type:varchar(20);not null;uniqueIndex:idx_pos_sessions_single_active,where:status = 'active'" json:"status"`
	Currency               currency.Code    `gorm:"type:varchar(4);not null" json:"currency"`
	OpenedAt               time.Time        `gorm:"not null;index" json:"opened_at"`
	OpenedBy               string           `gorm:"type:varchar(100);not null" json:"opened_by"`
	CashOpening            decimal.Decimal  `gorm:"type:decimal(24,8);not null" json:"cash_opening"`
	ClosedAt               *time.Time       `json:"closed_at,omitempty"`
	ClosedBy               string           `gorm:"type:varchar(100)" json:"closed_by,omitempty"`
	CashClosing            *decimal.Decimal `gorm:"type:decimal(24,8)" json:"cash_closing,omitempty"`
	CashClosingTheoretical *decimal.Decimal `gorm:"type:decimal(24,8)" json:"cash_closing_theoretical,omitempty"`
	CashDelta              *decimal.Decimal `gorm:"type:decimal(24,8)" json:"cash_delta,omitempty"`
	CashDeltaJustification string           `gorm:"type:text" json:"cash_delta_justification,omitempty"`
	TotalCashback          *decimal.Decimal `gorm:"type:decimal(24,8)" json:"total_cashback,omitempty"`
	DailyIncomes           []IncomeLine     `gorm:"type:jsonb;serializer:json" json:"daily_incomes"`
	DailyOutcomes          []OutcomeLine    `gorm:"type:jsonb;serializer:json" json:"daily_outcomes"`
	XTickets               []XTicket        `gorm:"type:jsonb;serializer:json" json:"x_tickets"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

func (s *PosSession) Active() bool {
	return s.Status == PosSessionActive
}

func (s *PosSession) Opening() currency.Money {
	return currency.Money{Amount: s.CashOpening, Currency: s.Currency}
}
