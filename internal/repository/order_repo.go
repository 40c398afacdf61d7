package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"settlement/internal/model"
)

type OrderRepository interface {
	// Create persists the order together with its items and initial payments.
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByIdentity(ctx context.Context, identity model.Identity, page, limit int) ([]model.Order, int64, error)
	// TransitionStatus is a compare-and-set on the order status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []model.OrderStatus, to model.OrderStatus) (bool, error)
	AddNote(ctx context.Context, note *model.OrderNote) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *orderRepository) preloaded(ctx context.Context) *gorm.DB {
	return GetDB(ctx, r.db).
		Preload("Items").
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc, id asc")
		}).
		Preload("Notes", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc")
		})
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := r.preloaded(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByIdentity(ctx context.Context, identity model.Identity, page, limit int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Order{})
	if identity.UserID != nil {
		db = db.Where("user_id = ? OR session_id = ?", *identity.UserID, identity.SessionID)
	} else {
		db = db.Where("session_id = ?", identity.SessionID)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.
		Preload("Items").
		Preload("Payments").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	updates := map[string]interface{}{"status": to, "updated_at": time.Now()}
	if to == model.OrderStatusCanceled {
		updates["canceled_at"] = time.Now()
	}
	res := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *orderRepository) AddNote(ctx context.Context, note *model.OrderNote) error {
	return GetDB(ctx, r.db).Create(note).Error
}
