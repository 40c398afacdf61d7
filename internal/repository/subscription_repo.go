package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"settlement/internal/model"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *model.Subscription) error
	// FindAllowances lists allowances of subscriptions still paid at now held by the identity.
	FindAllowances(ctx context.Context, identity model.Identity, productIDs []string, now time.Time) ([]model.FreeAllowance, error)
	FindAllowance(ctx context.Context, id uuid.UUID) (*model.FreeAllowance, error)
	// Consume adds n used units unless that would exceed the allowance.
	Consume(ctx context.Context, allowanceID uuid.UUID, n int) (bool, error)
	Release(ctx context.Context, allowanceID uuid.UUID, n int) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	return GetDB(ctx, r.db).Create(sub).Error
}

func (r *subscriptionRepository) FindAllowances(ctx context.Context, identity model.Identity, productIDs []string, now time.Time) ([]model.FreeAllowance, error) {
	var allowances []model.FreeAllowance
	if len(productIDs) == 0 {
		return allowances, nil
	}
	db := GetDB(ctx, r.db).
		Joins("JOIN subscriptions ON subscriptions.id = free_allowances.subscription_id").
		Where("free_allowances.product_id IN ? AND subscriptions.paid_until > ?", productIDs, now)
	if identity.UserID != nil {
		db = db.Where("subscriptions.user_id = ? OR subscriptions.session_id = ?", *identity.UserID, identity.SessionID)
	} else {
		db = db.Where("subscriptions.session_id = ?", identity.SessionID)
	}
	if err := db.Order("subscriptions.paid_until asc").Find(&allowances).Error; err != nil {
		return nil, err
	}
	return allowances, nil
}

func (r *subscriptionRepository) FindAllowance(ctx context.Context, id uuid.UUID) (*model.FreeAllowance, error) {
	var allowance model.FreeAllowance
	if err := GetDB(ctx, r.db).First(&allowance, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &allowance, nil
}

func (r *subscriptionRepository) Consume(ctx context.Context, allowanceID uuid.UUID, n int) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.FreeAllowance{}).
		Where("id = ? AND used + ? <= total", allowanceID, n).
		Update("used", gorm.Expr("used + ?", n))
	return res.RowsAffected == 1, res.Error
}

func (r *subscriptionRepository) Release(ctx context.Context, allowanceID uuid.UUID, n int) error {
	return GetDB(ctx, r.db).Model(&model.FreeAllowance{}).
		Where("id = ?", allowanceID).
		Update("used", gorm.Expr("GREATEST(used - ?, 0)", n)).Error
}
