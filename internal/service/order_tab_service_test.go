package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/config"
	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/internal/ticket"
	"settlement/pkg/apperror"
)

func TestAddItemConcurrentAddsShareOneLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tabs.AddItem(ctx, "table-3", AddTabItemRequest{ProductID: "coffee"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := f.tabs.GetOrderTab(ctx, "table-3")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.True(t, f.publisher.saw(live.TabTopic("table-3")))
}

func TestAddItemVariationsGetTheirOwnLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tabs.AddItem(ctx, "bar", AddTabItemRequest{ProductID: "coffee", Variations: model.Variations{"milk": "oat"}})
	require.NoError(t, err)
	_, err = f.tabs.AddItem(ctx, "bar", AddTabItemRequest{ProductID: "coffee"})
	require.NoError(t, err)

	view, err := f.tabs.GetOrderTab(ctx, "bar")
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
}

func TestAddItemRejectsQuantityAboveCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addToTab(t, "table-1", "burger", 3)

	_, err := f.tabs.AddItem(ctx, "table-1", AddTabItemRequest{ProductID: "burger"})
	requireKind(t, err, apperror.KindValidation)

	view, err := f.tabs.GetOrderTab(ctx, "table-1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
}

func TestAddItemUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.tabs.AddItem(context.Background(), "table-1", AddTabItemRequest{ProductID: "caviar"})
	requireKind(t, err, apperror.KindNotFound)
}

func TestUpdateItemZeroRemovesLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addToTab(t, "table-2", "coffee", 2)

	zero := 0
	updated, err := f.tabs.UpdateItem(ctx, "table-2", item.ID, UpdateTabItemRequest{Quantity: &zero}, staff)
	require.NoError(t, err)
	assert.Nil(t, updated)

	view, err := f.tabs.GetOrderTab(ctx, "table-2")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Nil(t, view.Totals)
}

func TestUpdateItemSetsNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addToTab(t, "table-2", "burger", 1)

	two, note := 2, "no onions"
	updated, err := f.tabs.UpdateItem(ctx, "table-2", item.ID, UpdateTabItemRequest{Quantity: &two, Note: &note}, staff)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quantity)
	require.NotNil(t, updated.InternalNote)
	assert.Equal(t, "no onions", updated.InternalNote.Value)
	assert.Equal(t, staff.Actor(), updated.InternalNote.UpdatedBy)
}

func TestPrintedLinesLockedAfterPrint(t *testing.T) {
	f := newFixture(t, withSettlement(func(cfg *config.Settlement) { cfg.LockItemsAfterPrint = true }))
	ctx := context.Background()
	item := f.addToTab(t, "table-4", "burger", 2)

	entry, err := f.tabs.Print(ctx, "table-4", TicketRequest{Kind: model.PrintKindKitchen, Mode: ticket.ModeAll}, staff)
	require.NoError(t, err)
	assert.Contains(t, entry.Content, "Burger")

	err = f.tabs.RemoveLine(ctx, "table-4", item.ID)
	requireKind(t, err, apperror.KindForbidden)

	one := 1
	_, err = f.tabs.UpdateItem(ctx, "table-4", item.ID, UpdateTabItemRequest{Quantity: &one}, staff)
	requireKind(t, err, apperror.KindForbidden)

	three := 3
	updated, err := f.tabs.UpdateItem(ctx, "table-4", item.ID, UpdateTabItemRequest{Quantity: &three}, staff)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)

	err = f.tabs.RemoveTab(ctx, "table-4", staff)
	requireKind(t, err, apperror.KindForbidden)
}

func TestRemoveLineAllowedWithoutLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addToTab(t, "table-4", "burger", 1)

	_, err := f.tabs.Print(ctx, "table-4", TicketRequest{Kind: model.PrintKindKitchen}, staff)
	require.NoError(t, err)
	require.NoError(t, f.tabs.RemoveLine(ctx, "table-4", item.ID))
}

func TestKitchenTicketNewlyOrderedOnlyListsUnprinted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addToTab(t, "table-5", "burger", 1)

	_, err := f.tabs.Print(ctx, "table-5", TicketRequest{Kind: model.PrintKindKitchen, Mode: ticket.ModeNewlyOrdered}, staff)
	require.NoError(t, err)
	f.addToTab(t, "table-5", "coffee", 1)

	text, err := f.tabs.BuildTicket(ctx, "table-5", TicketRequest{Kind: model.PrintKindKitchen, Mode: ticket.ModeNewlyOrdered}, staff)
	require.NoError(t, err)
	assert.Contains(t, text, "Coffee")
	assert.NotContains(t, text, "Burger")
}

func TestPrintHistoryKeepsNewestEntries(t *testing.T) {
	f := newFixture(t, withSettlement(func(cfg *config.Settlement) { cfg.PrintHistoryLimit = 2 }))
	ctx := context.Background()
	f.addToTab(t, "table-6", "coffee", 1)

	for _, content := range []string{"first", "second", "third"} {
		_, err := f.tabs.AppendPrintHistory(ctx, "table-6", AppendPrintRequest{Kind: model.PrintKindCustomer, Content: content}, staff)
		require.NoError(t, err)
	}

	entries, err := f.tabs.PrintHistory(ctx, "table-6")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Content)
	assert.Equal(t, "second", entries[1].Content)
}

func TestSetDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addToTab(t, "table-7", "coffee", 2)

	_, err := f.tabs.SetDiscount(ctx, "table-7", SetDiscountRequest{Percentage: dec("10")}, staff)
	requireKind(t, err, apperror.KindValidation)

	_, err = f.tabs.SetDiscount(ctx, "table-7", SetDiscountRequest{Percentage: dec("10"), Justification: "regular"}, staff)
	require.NoError(t, err)

	view, err := f.tabs.GetOrderTab(ctx, "table-7")
	require.NoError(t, err)
	require.NotNil(t, view.Totals)
	assert.True(t, dec("0.90").Equal(view.Totals.Main.Discount), view.Totals.Main.Discount.String())
	assert.True(t, dec("8.10").Equal(view.Totals.Main.Total), view.Totals.Main.Total.String())

	logs, _, err := f.repos.Audit.List(ctx, view.ID.String(), 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, model.ActionSetTabDiscount, logs[0].Action)
}

func TestCustomerTicketShowsTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addToTab(t, "table-8", "coffee", 2)

	text, err := f.tabs.BuildTicket(ctx, "table-8", TicketRequest{Kind: model.PrintKindCustomer}, staff)
	require.NoError(t, err)
	assert.Contains(t, text, "9.00")
}

func TestConcludeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-9", "coffee", 2, CreateOrderRequest{Method: "cash"})
	require.Len(t, order.Payments, 1)

	_, err := f.payments.OnPaymentSettled(ctx, order.ID, order.Payments[0].ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)

	again, err := f.tabs.ConcludeIfFullyPaidAndNotEmpty(ctx, "table-9")
	require.NoError(t, err)
	assert.False(t, again.Concluded)
	require.NotNil(t, again.OrderID)
	assert.Equal(t, order.ID, *again.OrderID)

	view, err := f.tabs.GetOrderTab(ctx, "table-9")
	require.NoError(t, err)
	assert.Nil(t, view.OrderID)
	require.NotNil(t, view.LastOrderID)
	assert.Equal(t, order.ID, *view.LastOrderID)
	assert.Empty(t, view.Items)
}

func TestConcludeKeepsItemsAddedAfterOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-10", "coffee", 2, CreateOrderRequest{Method: "cash"})

	f.addToTab(t, "table-10", "coffee", 1)
	f.addToTab(t, "table-10", "burger", 1)

	_, err := f.payments.OnPaymentSettled(ctx, order.ID, order.Payments[0].ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)

	view, err := f.tabs.GetOrderTab(ctx, "table-10")
	require.NoError(t, err)
	quantities := map[string]int{}
	for _, item := range view.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[string]int{"coffee": 1, "burger": 1}, quantities)
}

func TestConcludeResetsPrintStatusOfCarriedLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := f.addToTab(t, "table-12", "coffee", 2)
	require.NoError(t, f.tabs.MarkPrinted(ctx, "table-12", []PrintedLine{{ItemID: line.ID, Quantity: 2}}))

	order, err := f.orders.CreateOrderFromTab(ctx, "table-12", CreateOrderRequest{Method: "cash"}, staff)
	require.NoError(t, err)
	f.addToTab(t, "table-12", "coffee", 1)

	_, err = f.payments.OnPaymentSettled(ctx, order.ID, order.Payments[0].ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)

	tab, err := f.repos.Tabs.FindBySlug(ctx, "table-12")
	require.NoError(t, err)
	require.Len(t, tab.Items, 1)
	assert.Equal(t, 1, tab.Items[0].Quantity)
	assert.Zero(t, tab.Items[0].PrintedQuantity)
	assert.Equal(t, model.PrintStatusPending, tab.Items[0].PrintStatus)
}

func TestConcludeUnpaidOrderDoesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-11", "coffee", 1, CreateOrderRequest{Method: "cash"})

	res, err := f.tabs.ConcludeIfFullyPaidAndNotEmpty(ctx, "table-11")
	require.NoError(t, err)
	assert.False(t, res.Concluded)

	view, err := f.tabs.GetOrderTab(ctx, "table-11")
	require.NoError(t, err)
	require.NotNil(t, view.OrderID)
	assert.Equal(t, order.ID, *view.OrderID)
}

func TestTabFrozenWhileOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tabOrder(t, "table-12", "coffee", 1, CreateOrderRequest{Method: "cash"})

	_, err := f.tabs.SetDiscount(ctx, "table-12", SetDiscountRequest{Percentage: dec("5"), Justification: "late"}, staff)
	requireKind(t, err, apperror.KindConflict)

	err = f.tabs.RemoveTab(ctx, "table-12", staff)
	requireKind(t, err, apperror.KindConflict)

	_, err = f.orders.CreateOrderFromTab(ctx, "table-12", CreateOrderRequest{Method: "cash"}, staff)
	requireKind(t, err, apperror.KindConflict)
}

func TestRemoveTab(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addToTab(t, "terrace", "coffee", 1)

	require.NoError(t, f.tabs.RemoveTab(ctx, "terrace", staff))

	_, err := f.tabs.PrintHistory(ctx, "terrace")
	requireKind(t, err, apperror.KindNotFound)
}

func TestInvalidSlug(t *testing.T) {
	f := newFixture(t)
	_, err := f.tabs.GetOrderTab(context.Background(), " ")
	requireKind(t, err, apperror.KindValidation)
}
