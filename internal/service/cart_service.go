package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/pkg/apperror"
)

type AddCartItemRequest struct {
	ProductID   string           `json:"product_id" binding:"required"`
	Quantity    int              `json:"quantity" binding:"omitempty,min=1,max=1000"`
	Variations  model.Variations `json:"chosen_variations"`
	CustomPrice *decimal.Decimal `json:"custom_price"`
}

// CartService manages the per-session e-commerce cart orders are created from.
type CartService interface {
	GetCart(ctx context.Context, identity model.Identity) (*model.Cart, error)
	AddItem(ctx context.Context, req AddCartItemRequest, identity model.Identity) (*model.CartItem, error)
	Clear(ctx context.Context, identity model.Identity) error
}

type cartService struct {
	stores    Stores
	publisher live.Publisher
	log       logrus.FieldLogger
}

func NewCartService(stores Stores, publisher live.Publisher, log logrus.FieldLogger) CartService {
	return &cartService{stores: stores, publisher: publisher, log: log}
}

func (s *cartService) GetCart(ctx context.Context, identity model.Identity) (*model.Cart, error) {
	return s.stores.Carts.GetOrCreate(ctx, identity.SessionID)
}

func (s *cartService) AddItem(ctx context.Context, req AddCartItemRequest, identity model.Identity) (*model.CartItem, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, apperror.Validation("invalid quantity", apperror.FieldError{Field: "quantity", Message: "must be at least 1"})
	}
	product, err := s.stores.Products.FindByID(ctx, req.ProductID)
	if err != nil {
		return nil, notFound(err, "product "+req.ProductID)
	}
	if req.CustomPrice != nil {
		if !product.PayWhatYouWant {
			return nil, apperror.Validation("custom price not allowed", apperror.FieldError{Field: "custom_price", Message: "product has a fixed price"})
		}
		if req.CustomPrice.LessThan(product.Price) {
			return nil, apperror.Validation("custom price below minimum", apperror.FieldError{Field: "custom_price", Message: "must be at least " + product.UnitPrice().String()})
		}
	}

	var item *model.CartItem
	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.stores.Carts.GetOrCreate(txCtx, identity.SessionID)
		if err != nil {
			return err
		}
		item, err = s.stores.Carts.IncrementItem(txCtx, cart.ID, product.ID, req.Variations, quantity, req.CustomPrice)
		if err != nil {
			return err
		}
		if !product.Allows(item.Quantity) {
			return apperror.Validation("maximum quantity per order exceeded", apperror.FieldError{Field: "quantity", Message: "too large for this product"})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(live.UserTopic(identity.SessionID), live.EventCartUpdated)
	return item, nil
}

func (s *cartService) Clear(ctx context.Context, identity model.Identity) error {
	cart, err := s.stores.Carts.FindBySession(ctx, identity.SessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.stores.Carts.Clear(ctx, cart.ID)
}
