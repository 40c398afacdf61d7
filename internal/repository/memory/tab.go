package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/model"
)

type tabRepo struct{ s *Store }

func (r *tabRepo) itemsOf(tabID uuid.UUID) []model.OrderTabItem {
	var items []model.OrderTabItem
	for _, item := range r.s.data.tabItems {
		if item.TabID == tabID && item.Quantity > 0 {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return strings.Compare(items[i].ID.String(), items[j].ID.String()) < 0
	})
	return items
}

func (r *tabRepo) find(match func(model.OrderTab) bool) (*model.OrderTab, error) {
	for _, tab := range r.s.data.tabs {
		if match(tab) {
			tab.Items = r.itemsOf(tab.ID)
			return &tab, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *tabRepo) GetOrCreate(ctx context.Context, slug string) (*model.OrderTab, error) {
	defer r.s.lock(ctx)()
	if tab, err := r.find(func(t model.OrderTab) bool { return t.Slug == slug }); err == nil {
		return tab, nil
	}
	now := r.s.stamp()
	tab := model.OrderTab{ID: uuid.New(), Slug: slug, CreatedAt: now, UpdatedAt: now}
	r.s.data.tabs[tab.ID] = tab
	return &tab, nil
}

func (r *tabRepo) FindBySlug(ctx context.Context, slug string) (*model.OrderTab, error) {
	defer r.s.lock(ctx)()
	return r.find(func(t model.OrderTab) bool { return t.Slug == slug })
}

func (r *tabRepo) FindBySlugForUpdate(ctx context.Context, slug string) (*model.OrderTab, error) {
	return r.FindBySlug(ctx, slug)
}

func (r *tabRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*model.OrderTab, error) {
	defer r.s.lock(ctx)()
	return r.find(func(t model.OrderTab) bool { return t.OrderID != nil && *t.OrderID == orderID })
}

func (r *tabRepo) Delete(ctx context.Context, tabID uuid.UUID) error {
	defer r.s.lock(ctx)()
	r.clearItems(tabID)
	delete(r.s.data.tabs, tabID)
	return nil
}

func (r *tabRepo) IncrementItem(ctx context.Context, tabID uuid.UUID, productID string, variations model.Variations, by int) (*model.OrderTabItem, error) {
	defer r.s.lock(ctx)()
	key := variations.Key()
	now := r.s.stamp()
	for id, item := range r.s.data.tabItems {
		if item.TabID == tabID && item.ProductID == productID && item.VariationKey == key {
			item.Quantity += by
			item.UpdatedAt = now
			r.s.data.tabItems[id] = item
			return &item, nil
		}
	}
	item := model.OrderTabItem{
		ID:               uuid.New(),
		TabID:            tabID,
		ProductID:        productID,
		VariationKey:     key,
		ChosenVariations: variations,
		Quantity:         by,
		PrintStatus:      model.PrintStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.s.data.tabItems[item.ID] = item
	return &item, nil
}

func (r *tabRepo) lookupItem(tabID, itemID uuid.UUID) (model.OrderTabItem, bool) {
	item, ok := r.s.data.tabItems[itemID]
	if !ok || item.TabID != tabID {
		return model.OrderTabItem{}, false
	}
	return item, true
}

func (r *tabRepo) FindItem(ctx context.Context, tabID, itemID uuid.UUID) (*model.OrderTabItem, error) {
	defer r.s.lock(ctx)()
	item, ok := r.lookupItem(tabID, itemID)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &item, nil
}

func (r *tabRepo) UpdateItem(ctx context.Context, tabID, itemID uuid.UUID, quantity int, note *model.InternalNote) error {
	defer r.s.lock(ctx)()
	item, ok := r.lookupItem(tabID, itemID)
	if !ok {
		return gorm.ErrRecordNotFound
	}
	item.Quantity = quantity
	item.InternalNote = note
	item.UpdatedAt = time.Now()
	r.s.data.tabItems[itemID] = item
	return nil
}

func (r *tabRepo) DeleteItem(ctx context.Context, tabID, itemID uuid.UUID) error {
	defer r.s.lock(ctx)()
	if _, ok := r.lookupItem(tabID, itemID); !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.data.tabItems, itemID)
	return nil
}

func (r *tabRepo) MarkPrinted(ctx context.Context, tabID, itemID uuid.UUID, printedQuantity int) error {
	defer r.s.lock(ctx)()
	item, ok := r.lookupItem(tabID, itemID)
	if !ok {
		return gorm.ErrRecordNotFound
	}
	item.PrintedQuantity = printedQuantity
	item.PrintStatus = model.PrintStatusAcknowledged
	if printedQuantity <= 0 {
		item.PrintStatus = model.PrintStatusPending
	}
	item.UpdatedAt = time.Now()
	r.s.data.tabItems[itemID] = item
	return nil
}

func (r *tabRepo) ConsumeItem(ctx context.Context, tabID, itemID uuid.UUID, quantity int) error {
	defer r.s.lock(ctx)()
	item, ok := r.lookupItem(tabID, itemID)
	if !ok {
		return nil
	}
	item.Quantity -= quantity
	if item.Quantity <= 0 {
		delete(r.s.data.tabItems, itemID)
		return nil
	}
	item.PrintedQuantity = max(item.PrintedQuantity-quantity, 0)
	if item.PrintedQuantity == 0 {
		item.PrintStatus = model.PrintStatusPending
	}
	item.UpdatedAt = time.Now()
	r.s.data.tabItems[itemID] = item
	return nil
}

func (r *tabRepo) clearItems(tabID uuid.UUID) {
	for id, item := range r.s.data.tabItems {
		if item.TabID == tabID {
			delete(r.s.data.tabItems, id)
		}
	}
}

func (r *tabRepo) ClearItems(ctx context.Context, tabID uuid.UUID) error {
	defer r.s.lock(ctx)()
	r.clearItems(tabID)
	return nil
}

func (r *tabRepo) update(tabID uuid.UUID, match func(model.OrderTab) bool, apply func(*model.OrderTab)) bool {
	tab, ok := r.s.data.tabs[tabID]
	if !ok || !match(tab) {
		return false
	}
	apply(&tab)
	tab.UpdatedAt = time.Now()
	r.s.data.tabs[tabID] = tab
	return true
}

func (r *tabRepo) SetDiscount(ctx context.Context, tabID uuid.UUID, percentage *decimal.Decimal, justification string) error {
	defer r.s.lock(ctx)()
	r.update(tabID, func(model.OrderTab) bool { return true }, func(t *model.OrderTab) {
		t.DiscountPercentage = percentage
		t.DiscountJustification = justification
	})
	return nil
}

func (r *tabRepo) LinkOrder(ctx context.Context, tabID, orderID uuid.UUID) (bool, error) {
	defer r.s.lock(ctx)()
	return r.update(tabID, func(t model.OrderTab) bool { return t.OrderID == nil }, func(t *model.OrderTab) {
		t.OrderID = &orderID
	}), nil
}

func (r *tabRepo) Conclude(ctx context.Context, tabID, orderID uuid.UUID) (bool, error) {
	defer r.s.lock(ctx)()
	return r.update(tabID, linkedTo(orderID), func(t *model.OrderTab) {
		t.OrderID = nil
		t.LastOrderID = &orderID
		t.DiscountPercentage = nil
		t.DiscountJustification = ""
	}), nil
}

func (r *tabRepo) UnlinkOrder(ctx context.Context, tabID, orderID uuid.UUID) error {
	defer r.s.lock(ctx)()
	r.update(tabID, linkedTo(orderID), func(t *model.OrderTab) { t.OrderID = nil })
	return nil
}

func linkedTo(orderID uuid.UUID) func(model.OrderTab) bool {
	return func(t model.OrderTab) bool { return t.OrderID != nil && *t.OrderID == orderID }
}

func (r *tabRepo) AppendPrintEntry(ctx context.Context, entry *model.TabPrintEntry, keep int) error {
	defer r.s.lock(ctx)()
	entry.ID = newID(entry.ID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.stamp()
	}
	entries := append(slices.Clone(r.s.data.printEntries), *entry)

	var kept []model.TabPrintEntry
	count := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].TabID == entry.TabID {
			count++
			if count > keep {
				continue
			}
		}
		kept = append(kept, entries[i])
	}
	slices.Reverse(kept)
	r.s.data.printEntries = kept
	return nil
}

func (r *tabRepo) ListPrintEntries(ctx context.Context, tabID uuid.UUID) ([]model.TabPrintEntry, error) {
	defer r.s.lock(ctx)()
	var out []model.TabPrintEntry
	for i := len(r.s.data.printEntries) - 1; i >= 0; i-- {
		if e := r.s.data.printEntries[i]; e.TabID == tabID {
			out = append(out, e)
		}
	}
	return out, nil
}
