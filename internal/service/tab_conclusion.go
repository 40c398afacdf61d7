package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/internal/repository"
)

type ConcludeResult struct {
	Concluded bool       `json:"concluded"`
	OrderID   *uuid.UUID `json:"order_id,omitempty"`
}

// tabConcluder detaches a tab from its derived order once that order is
// settled. Both the tab read path and payment callbacks run it, so it must
// stay idempotent.
type tabConcluder struct {
	stores    Stores
	publisher live.Publisher
	log       logrus.FieldLogger
}

func (c *tabConcluder) conclude(ctx context.Context, slug string) (*ConcludeResult, error) {
	tab, err := c.stores.Tabs.FindBySlug(ctx, slug)
	if err != nil {
		return nil, notFound(err, "order tab")
	}
	if tab.OrderID == nil {
		return &ConcludeResult{OrderID: tab.LastOrderID}, nil
	}
	orderID := *tab.OrderID

	order, err := c.stores.Orders.FindByID(ctx, orderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if order == nil || order.Status == model.OrderStatusCanceled {
		if err := c.stores.Tabs.UnlinkOrder(ctx, tab.ID, orderID); err != nil {
			return nil, err
		}
		c.publisher.Publish(live.TabTopic(slug), live.EventTabUpdated)
		return &ConcludeResult{OrderID: tab.LastOrderID}, nil
	}
	if order.Status != model.OrderStatusPaid {
		return &ConcludeResult{OrderID: tab.LastOrderID}, nil
	}

	concluded := false
	err = c.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		ok, err := c.stores.Tabs.Conclude(txCtx, tab.ID, orderID)
		if err != nil || !ok {
			return err
		}
		concluded = true

		fresh, err := c.stores.Tabs.FindBySlug(txCtx, slug)
		if err != nil {
			return err
		}
		if err := consumeOrderedItems(txCtx, c.stores.Tabs, fresh, order.Items); err != nil {
			return err
		}
		return writeAudit(txCtx, c.stores.Audit, systemIdentity, model.ActionConcludeTab, tab.ID.String(), slug, map[string]interface{}{
			"order_id":     orderID,
			"order_number": order.Number,
		})
	})
	if err != nil {
		return nil, err
	}

	if concluded {
		c.log.WithFields(logrus.Fields{"tab": slug, "order": order.Number}).Info("Order tab concluded")
		c.publisher.Publish(live.TabTopic(slug), live.EventTabUpdated)
	}
	return &ConcludeResult{Concluded: concluded, OrderID: &orderID}, nil
}

// consumeOrderedItems removes from the tab the quantities an order paid for.
// Each line is decremented in place so units added meanwhile stay on the tab.
func consumeOrderedItems(ctx context.Context, tabs repository.OrderTabRepository, tab *model.OrderTab, ordered []model.OrderItem) error {
	lines := make(map[string]uuid.UUID, len(tab.Items))
	for _, item := range tab.Items {
		lines[item.ProductID+"|"+item.VariationKey] = item.ID
	}

	for _, o := range ordered {
		lineID, ok := lines[o.ProductID+"|"+o.Variations.Key()]
		if !ok || o.Quantity <= 0 {
			continue
		}
		if err := tabs.ConsumeItem(ctx, tab.ID, lineID, o.Quantity); err != nil {
			return err
		}
	}
	return nil
}
