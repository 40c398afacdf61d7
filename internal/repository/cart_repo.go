package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement/internal/model"
)

type CartRepository interface {
	GetOrCreate(ctx context.Context, sessionID string) (*model.Cart, error)
	FindBySession(ctx context.Context, sessionID string) (*model.Cart, error)
	IncrementItem(ctx context.Context, cartID uuid.UUID, productID string, variations model.Variations, by int, customPrice *decimal.Decimal) (*model.CartItem, error)
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) GetOrCreate(ctx context.Context, sessionID string) (*model.Cart, error) {
	cart := model.Cart{ID: uuid.New(), SessionID: sessionID}
	if err := GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(&cart).Error; err != nil {
		return nil, err
	}
	return r.FindBySession(ctx, sessionID)
}

func (r *cartRepository) FindBySession(ctx context.Context, sessionID string) (*model.Cart, error) {
	var cart model.Cart
	if err := GetDB(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc, id asc") }).
		Where("session_id = ?", sessionID).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) IncrementItem(ctx context.Context, cartID uuid.UUID, productID string, variations model.Variations, by int, customPrice *decimal.Decimal) (*model.CartItem, error) {
	item := model.CartItem{
		ID:               uuid.New(),
		CartID:           cartID,
		ProductID:        productID,
		VariationKey:     variations.Key(),
		ChosenVariations: variations,
		Quantity:         by,
		CustomPrice:      customPrice,
	}
	assignments := map[string]interface{}{
		"quantity":   gorm.Expr("cart_items.quantity + ?", by),
		"updated_at": time.Now(),
	}
	if customPrice != nil {
		assignments["custom_price"] = *customPrice
	}
	err := GetDB(ctx, r.db).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}, {Name: "variation_key"}},
			DoUpdates: clause.Assignments(assignments),
		},
		clause.Returning{},
	).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) Clear(ctx context.Context, cartID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error
}
