package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/model"
)

// PaymentTransition lists the columns written when a payment leaves pending.
type PaymentTransition struct {
	Status           model.PaymentStatus
	PaidAt           *time.Time
	InvoiceNumber    *int64
	InvoiceCreatedAt *time.Time
	FailureReason    model.FailureReason
	ReplacedByID     *uuid.UUID
	Cashback         *decimal.Decimal
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	FindByID(ctx context.Context, orderID, id uuid.UUID) (*model.Payment, error)
	FindByCheckoutID(ctx context.Context, checkoutID string) (*model.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error)
	// Transition is a compare-and-set on the payment status.
	Transition(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, t PaymentTransition) (bool, error)
	SetCheckout(ctx context.Context, id uuid.UUID, checkoutID, processor string, expiresAt *time.Time) error
	SetReplacedBy(ctx context.Context, id, replacementID uuid.UUID) error
	ListPaidBetween(ctx context.Context, from, to time.Time) ([]model.Payment, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Payment, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) FindByID(ctx context.Context, orderID, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).Where("id = ? AND order_id = ?", id, orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).Where("checkout_id = ?", checkoutID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	if err := GetDB(ctx, r.db).Where("order_id = ?", orderID).Order("created_at asc, id asc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) Transition(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, t PaymentTransition) (bool, error) {
	updates := map[string]interface{}{"status": t.Status, "updated_at": time.Now()}
	if t.PaidAt != nil {
		updates["paid_at"] = *t.PaidAt
	}
	if t.InvoiceNumber != nil {
		updates["invoice_number"] = *t.InvoiceNumber
		updates["invoice_created_at"] = t.InvoiceCreatedAt
	}
	if t.FailureReason != "" {
		updates["failure_reason"] = t.FailureReason
	}
	if t.ReplacedByID != nil {
		updates["replaced_by_id"] = *t.ReplacedByID
	}
	if t.Cashback != nil {
		updates["cashback"] = *t.Cashback
	}
	res := GetDB(ctx, r.db).Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *paymentRepository) SetCheckout(ctx context.Context, id uuid.UUID, checkoutID, processor string, expiresAt *time.Time) error {
	return GetDB(ctx, r.db).Model(&model.Payment{}).Where("id = ?", id).
		Updates(map[string]interface{}{"checkout_id": checkoutID, "expires_at": expiresAt}).Error
}

func (r *paymentRepository) SetReplacedBy(ctx context.Context, id, replacementID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Payment{}).Where("id = ?", id).
		Update("replaced_by_id", replacementID).Error
}

func (r *paymentRepository) ListPaidBetween(ctx context.Context, from, to time.Time) ([]model.Payment, error) {
	var payments []model.Payment
	if err := GetDB(ctx, r.db).
		Where("status = ? AND paid_at >= ? AND paid_at <= ?", model.PaymentStatusPaid, from, to).
		Order("paid_at asc").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	if err := GetDB(ctx, r.db).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.PaymentStatusPending, now).
		Order("expires_at asc").
		Limit(limit).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
