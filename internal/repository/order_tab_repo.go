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

type OrderTabRepository interface {
	// GetOrCreate returns the tab with its items, creating an empty one on first reference.
	GetOrCreate(ctx context.Context, slug string) (*model.OrderTab, error)
	FindBySlug(ctx context.Context, slug string) (*model.OrderTab, error)
	FindBySlugForUpdate(ctx context.Context, slug string) (*model.OrderTab, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*model.OrderTab, error)
	Delete(ctx context.Context, tabID uuid.UUID) error

	// IncrementItem adds by to the matching line in a single upsert, creating it if absent.
	IncrementItem(ctx context.Context, tabID uuid.UUID, productID string, variations model.Variations, by int) (*model.OrderTabItem, error)
	FindItem(ctx context.Context, tabID, itemID uuid.UUID) (*model.OrderTabItem, error)
	UpdateItem(ctx context.Context, tabID, itemID uuid.UUID, quantity int, note *model.InternalNote) error
	DeleteItem(ctx context.Context, tabID, itemID uuid.UUID) error
	MarkPrinted(ctx context.Context, tabID, itemID uuid.UUID, printedQuantity int) error
	// ConsumeItem subtracts quantity from a line (and from its printed count) in
	// place and deletes the line once nothing is left. A missing line is a no-op.
	ConsumeItem(ctx context.Context, tabID, itemID uuid.UUID, quantity int) error
	ClearItems(ctx context.Context, tabID uuid.UUID) error

	SetDiscount(ctx context.Context, tabID uuid.UUID, percentage *decimal.Decimal, justification string) error
	// LinkOrder attaches a derived order to a tab that has none. Reports false when already linked.
	LinkOrder(ctx context.Context, tabID, orderID uuid.UUID) (bool, error)
	// Conclude moves order_id into last_order_id only if it still equals orderID.
	Conclude(ctx context.Context, tabID, orderID uuid.UUID) (bool, error)
	UnlinkOrder(ctx context.Context, tabID, orderID uuid.UUID) error

	AppendPrintEntry(ctx context.Context, entry *model.TabPrintEntry, keep int) error
	ListPrintEntries(ctx context.Context, tabID uuid.UUID) ([]model.TabPrintEntry, error)
}

type orderTabRepository struct {
	db *gorm.DB
}

func NewOrderTabRepository(db *gorm.DB) OrderTabRepository {
	return &orderTabRepository{db: db}
}

func (r *orderTabRepository) withItems(ctx context.Context) *gorm.DB {
	return GetDB(ctx, r.db).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Where("quantity > 0").Order("created_at asc, id asc")
	})
}

func (r *orderTabRepository) GetOrCreate(ctx context.Context, slug string) (*model.OrderTab, error) {
	tab := model.OrderTab{ID: uuid.New(), Slug: slug}
	if err := GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&tab).Error; err != nil {
		return nil, err
	}
	return r.FindBySlug(ctx, slug)
}

func (r *orderTabRepository) FindBySlug(ctx context.Context, slug string) (*model.OrderTab, error) {
	var tab model.OrderTab
	if err := r.withItems(ctx).Where("slug = ?", slug).First(&tab).Error; err != nil {
		return nil, err
	}
	return &tab, nil
}

func (r *orderTabRepository) FindBySlugForUpdate(ctx context.Context, slug string) (*model.OrderTab, error) {
	var tab model.OrderTab
	if err := r.withItems(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("slug = ?", slug).First(&tab).Error; err != nil {
		return nil, err
	}
	return &tab, nil
}

func (r *orderTabRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*model.OrderTab, error) {
	var tab model.OrderTab
	if err := r.withItems(ctx).Where("order_id = ?", orderID).First(&tab).Error; err != nil {
		return nil, err
	}
	return &tab, nil
}

func (r *orderTabRepository) Delete(ctx context.Context, tabID uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("tab_id = ?", tabID).Delete(&model.OrderTabItem{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", tabID).Delete(&model.OrderTab{}).Error
}

func (r *orderTabRepository) IncrementItem(ctx context.Context, tabID uuid.UUID, productID string, variations model.Variations, by int) (*model.OrderTabItem, error) {
	item := model.OrderTabItem{
		ID:               uuid.New(),
		TabID:            tabID,
		ProductID:        productID,
		VariationKey:     variations.Key(),
		ChosenVariations: variations,
		Quantity:         by,
		PrintStatus:      model.PrintStatusPending,
	}
	err := GetDB(ctx, r.db).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "tab_id"}, {Name: "product_id"}, {Name: "variation_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("order_tab_items.quantity + ?", by),
				"updated_at": time.Now(),
			}),
		},
		clause.Returning{},
	).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *orderTabRepository) FindItem(ctx context.Context, tabID, itemID uuid.UUID) (*model.OrderTabItem, error) {
	var item model.OrderTabItem
	if err := GetDB(ctx, r.db).Where("id = ? AND tab_id = ?", itemID, tabID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *orderTabRepository) UpdateItem(ctx context.Context, tabID, itemID uuid.UUID, quantity int, note *model.InternalNote) error {
	res := GetDB(ctx, r.db).Model(&model.OrderTabItem{}).
		Where("id = ? AND tab_id = ?", itemID, tabID).
		Select("quantity", "internal_note", "updated_at").
		Updates(&model.OrderTabItem{Quantity: quantity, InternalNote: note, UpdatedAt: time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *orderTabRepository) DeleteItem(ctx context.Context, tabID, itemID uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ? AND tab_id = ?", itemID, tabID).Delete(&model.OrderTabItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *orderTabRepository) MarkPrinted(ctx context.Context, tabID, itemID uuid.UUID, printedQuantity int) error {
	status := model.PrintStatusAcknowledged
	if printedQuantity <= 0 {
		status = model.PrintStatusPending
	}
	res := GetDB(ctx, r.db).Model(&model.OrderTabItem{}).
		Where("id = ? AND tab_id = ?", itemID, tabID).
		Updates(map[string]interface{}{
			"printed_quantity": printedQuantity,
			"print_status":     status,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *orderTabRepository) ConsumeItem(ctx context.Context, tabID, itemID uuid.UUID, quantity int) error {
	db := GetDB(ctx, r.db)
	// right-hand sides see the row before the update
	err := db.Model(&model.OrderTabItem{}).
		Where("id = ? AND tab_id = ?", itemID, tabID).
		Updates(map[string]interface{}{
			"quantity":         gorm.Expr("quantity - ?", quantity),
			"printed_quantity": gorm.Expr("GREATEST(printed_quantity - ?, 0)", quantity),
			"print_status":     gorm.Expr("CASE WHEN printed_quantity > ? THEN print_status ELSE ? END", quantity, string(model.PrintStatusPending)),
			"updated_at":       time.Now(),
		}).Error
	if err != nil {
		return err
	}
	return db.Where("id = ? AND tab_id = ? AND quantity <= 0", itemID, tabID).Delete(&model.OrderTabItem{}).Error
}

func (r *orderTabRepository) ClearItems(ctx context.Context, tabID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("tab_id = ?", tabID).Delete(&model.OrderTabItem{}).Error
}

func (r *orderTabRepository) SetDiscount(ctx context.Context, tabID uuid.UUID, percentage *decimal.Decimal, justification string) error {
	return GetDB(ctx, r.db).Model(&model.OrderTab{}).Where("id = ?", tabID).
		Updates(map[string]interface{}{
			"discount_percentage":    percentage,
			"discount_justification": justification,
			"updated_at":             time.Now(),
		}).Error
}

func (r *orderTabRepository) LinkOrder(ctx context.Context, tabID, orderID uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.OrderTab{}).
		Where("id = ? AND order_id IS NULL", tabID).
		Updates(map[string]interface{}{"order_id": orderID, "updated_at": time.Now()})
	return res.RowsAffected == 1, res.Error
}

func (r *orderTabRepository) Conclude(ctx context.Context, tabID, orderID uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.OrderTab{}).
		Where("id = ? AND order_id = ?", tabID, orderID).
		Updates(map[string]interface{}{
			"order_id":               nil,
			"last_order_id":          orderID,
			"discount_percentage":    nil,
			"discount_justification": "",
			"updated_at":             time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *orderTabRepository) UnlinkOrder(ctx context.Context, tabID, orderID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.OrderTab{}).
		Where("id = ? AND order_id = ?", tabID, orderID).
		Updates(map[string]interface{}{"order_id": nil, "updated_at": time.Now()}).Error
}

func (r *orderTabRepository) AppendPrintEntry(ctx context.Context, entry *model.TabPrintEntry, keep int) error {
	db := GetDB(ctx, r.db)
	if err := db.Create(entry).Error; err != nil {
		return err
	}
	// Keep only the most recent entries of the tab.
	return db.Where("tab_id = ? AND id NOT IN (?)", entry.TabID,
		db.Model(&model.TabPrintEntry{}).Select("id").Where("tab_id = ?", entry.TabID).
			Order("created_at desc").Limit(keep),
	).Delete(&model.TabPrintEntry{}).Error
}

func (r *orderTabRepository) ListPrintEntries(ctx context.Context, tabID uuid.UUID) ([]model.TabPrintEntry, error) {
	var entries []model.TabPrintEntry
	if err := GetDB(ctx, r.db).Where("tab_id = ?", tabID).Order("created_at desc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
