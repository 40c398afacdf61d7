package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/model"
)

type productRepo struct{ s *Store }

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.data.products[product.ID]; exists {
		return gorm.ErrDuplicatedKey
	}
	now := r.s.stamp()
	product.CreatedAt, product.UpdatedAt = now, now
	r.s.data.products[product.ID] = *product
	return nil
}

func (r *productRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	defer r.s.lock(ctx)()
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.s.data.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *productRepo) List(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error) {
	defer r.s.lock(ctx)()
	var out []model.Product
	for _, p := range r.s.data.products {
		if search == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, page, limit), int64(len(out)), nil
}

type cartRepo struct{ s *Store }

func (r *cartRepo) find(sessionID string) (*model.Cart, error) {
	for _, c := range r.s.data.carts {
		if c.SessionID != sessionID {
			continue
		}
		c.Items = nil
		for _, item := range r.s.data.cartItems {
			if item.CartID == c.ID {
				c.Items = append(c.Items, item)
			}
		}
		sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].CreatedAt.Before(c.Items[j].CreatedAt) })
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *cartRepo) GetOrCreate(ctx context.Context, sessionID string) (*model.Cart, error) {
	defer r.s.lock(ctx)()
	if c, err := r.find(sessionID); err == nil {
		return c, nil
	}
	now := r.s.stamp()
	c := model.Cart{ID: uuid.New(), SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
	r.s.data.carts[c.ID] = c
	return &c, nil
}

func (r *cartRepo) FindBySession(ctx context.Context, sessionID string) (*model.Cart, error) {
	defer r.s.lock(ctx)()
	return r.find(sessionID)
}

func (r *cartRepo) IncrementItem(ctx context.Context, cartID uuid.UUID, productID string, variations model.Variations, by int, customPrice *decimal.Decimal) (*model.CartItem, error) {
	defer r.s.lock(ctx)()
	key := variations.Key()
	now := r.s.stamp()
	for id, item := range r.s.data.cartItems {
		if item.CartID == cartID && item.ProductID == productID && item.VariationKey == key {
			item.Quantity += by
			if customPrice != nil {
				item.CustomPrice = customPrice
			}
			item.UpdatedAt = now
			r.s.data.cartItems[id] = item
			return &item, nil
		}
	}
	item := model.CartItem{
		ID:               uuid.New(),
		CartID:           cartID,
		ProductID:        productID,
		VariationKey:     key,
		ChosenVariations: variations,
		Quantity:         by,
		CustomPrice:      customPrice,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.s.data.cartItems[item.ID] = item
	return &item, nil
}

func (r *cartRepo) Clear(ctx context.Context, cartID uuid.UUID) error {
	defer r.s.lock(ctx)()
	for id, item := range r.s.data.cartItems {
		if item.CartID == cartID {
			delete(r.s.data.cartItems, id)
		}
	}
	return nil
}

type subscriptionRepo struct{ s *Store }

func (r *subscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	defer r.s.lock(ctx)()
	sub.ID = newID(sub.ID)
	now := r.s.stamp()
	sub.CreatedAt, sub.UpdatedAt = now, now
	for i := range sub.FreeAllowances {
		a := &sub.FreeAllowances[i]
		a.ID = newID(a.ID)
		a.SubscriptionID = sub.ID
		r.s.data.allowances[a.ID] = *a
	}
	stored := *sub
	stored.FreeAllowances = nil
	r.s.data.subscriptions[sub.ID] = stored
	return nil
}

func (r *subscriptionRepo) FindAllowances(ctx context.Context, identity model.Identity, productIDs []string, now time.Time) ([]model.FreeAllowance, error) {
	defer r.s.lock(ctx)()
	wanted := map[string]bool{}
	for _, id := range productIDs {
		wanted[id] = true
	}
	type candidate struct {
		allowance model.FreeAllowance
		paidUntil time.Time
	}
	var found []candidate
	for _, a := range r.s.data.allowances {
		sub, ok := r.s.data.subscriptions[a.SubscriptionID]
		if !ok || !wanted[a.ProductID] || !sub.PaidUntil.After(now) {
			continue
		}
		mine := sub.SessionID == identity.SessionID
		if identity.UserID != nil && sub.UserID != nil && *sub.UserID == *identity.UserID {
			mine = true
		}
		if mine {
			found = append(found, candidate{a, sub.PaidUntil})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].paidUntil.Before(found[j].paidUntil) })
	out := make([]model.FreeAllowance, 0, len(found))
	for _, c := range found {
		out = append(out, c.allowance)
	}
	return out, nil
}

func (r *subscriptionRepo) FindAllowance(ctx context.Context, id uuid.UUID) (*model.FreeAllowance, error) {
	defer r.s.lock(ctx)()
	a, ok := r.s.data.allowances[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r *subscriptionRepo) Consume(ctx context.Context, allowanceID uuid.UUID, n int) (bool, error) {
	defer r.s.lock(ctx)()
	a, ok := r.s.data.allowances[allowanceID]
	if !ok || a.Used+n > a.Total {
		return false, nil
	}
	a.Used += n
	r.s.data.allowances[allowanceID] = a
	return true, nil
}

func (r *subscriptionRepo) Release(ctx context.Context, allowanceID uuid.UUID, n int) error {
	defer r.s.lock(ctx)()
	a, ok := r.s.data.allowances[allowanceID]
	if !ok {
		return nil
	}
	a.Used -= n
	if a.Used < 0 {
		a.Used = 0
	}
	r.s.data.allowances[allowanceID] = a
	return nil
}
