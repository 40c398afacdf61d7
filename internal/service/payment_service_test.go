package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/model"
	"settlement/pkg/apperror"
)

func TestProcessorUpdateSettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "menu", 1, CreateOrderRequest{Method: "card"})
	checkout := *order.Payments[0].CheckoutID

	paid, err := f.payments.HandleProcessorUpdate(ctx, ProcessorUpdate{CheckoutID: checkout, Status: "paid"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)

	again, err := f.payments.HandleProcessorUpdate(ctx, ProcessorUpdate{CheckoutID: checkout, Status: "paid"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, again.Status)

	p := f.payment(t, order.ID, order.Payments[0].ID)
	assert.Equal(t, model.PaymentStatusPaid, p.Status)
	require.NotNil(t, p.InvoiceNumber)
	assert.Equal(t, int64(1), *p.InvoiceNumber)
	require.NotNil(t, p.PaidAt)

	next, err := f.repos.Counters.Next(ctx, model.CounterInvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next, "a duplicate callback must not draw an invoice number")

	view, err := f.tabs.GetOrderTab(ctx, "table-1")
	require.NoError(t, err)
	assert.Nil(t, view.OrderID)
	assert.Empty(t, view.Items)
}

func TestProcessorUpdateUnknownCheckout(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.HandleProcessorUpdate(context.Background(), ProcessorUpdate{CheckoutID: "nope", Status: "paid"})
	requireKind(t, err, apperror.KindNotFound)
}

func TestProcessorUpdateRefusalKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "menu", 1, CreateOrderRequest{Method: "card"})

	updated, err := f.payments.HandleProcessorUpdate(ctx, ProcessorUpdate{CheckoutID: *order.Payments[0].CheckoutID, Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, updated.Status)
	assert.Equal(t, model.PaymentStatusFailed, updated.Payments[0].Status)
}

func TestSettleFailedPaymentConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "coffee", 1, CreateOrderRequest{Method: "cash"})
	paymentID := order.Payments[0].ID

	_, err := f.payments.OnPaymentFailed(ctx, order.ID, paymentID, FailPaymentRequest{}, staff)
	require.NoError(t, err)

	_, err = f.payments.OnPaymentSettled(ctx, order.ID, paymentID, SettlePaymentRequest{}, staff)
	requireKind(t, err, apperror.KindConflict)
}

func TestCancelLastPaymentKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "coffee", 1, CreateOrderRequest{Method: "cash"})

	updated, err := f.payments.OnPaymentFailed(ctx, order.ID, order.Payments[0].ID, FailPaymentRequest{Reason: model.FailureReasonCanceled}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, updated.Status)
	assert.Equal(t, model.PaymentStatusCanceled, updated.Payments[0].Status)

	view, err := f.tabs.GetOrderTab(ctx, "table-1")
	require.NoError(t, err)
	require.NotNil(t, view.OrderID)
	assert.Equal(t, order.ID, *view.OrderID)
}

func TestCancelPaymentPreservingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "coffee", 1, CreateOrderRequest{Method: "cash"})

	updated, err := f.payments.OnPaymentFailed(ctx, order.ID, order.Payments[0].ID, FailPaymentRequest{
		Reason:              model.FailureReasonCanceled,
		PreserveOrderStatus: true,
	}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, updated.Status)
	assert.Equal(t, model.PaymentStatusCanceled, updated.Payments[0].Status)
}

func TestOnPaymentFailedRejectsUnknownReason(t *testing.T) {
	f := newFixture(t)
	order := f.tabOrder(t, "table-1", "coffee", 1, CreateOrderRequest{Method: "cash"})
	_, err := f.payments.OnPaymentFailed(context.Background(), order.ID, order.Payments[0].ID, FailPaymentRequest{Reason: "stolen"}, staff)
	requireKind(t, err, apperror.KindValidation)
}

func TestReplaceMethodAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "menu", 1, CreateOrderRequest{Method: "card"})
	old := order.Payments[0]

	_, err := f.payments.OnPaymentFailed(ctx, order.ID, old.ID, FailPaymentRequest{Reason: model.FailureReasonFailed}, staff)
	require.NoError(t, err)

	replacement, err := f.payments.ReplaceMethod(ctx, order.ID, old.ID, ReplaceMethodRequest{Method: "cash"}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentMethodCash, replacement.Method)
	assert.Equal(t, model.PaymentStatusPending, replacement.Status)
	assert.True(t, dec("30.00").Equal(replacement.Amount.Main.Amount), replacement.Amount.Main.String())
	assert.Nil(t, replacement.CheckoutID)

	replaced := f.payment(t, order.ID, old.ID)
	require.NotNil(t, replaced.ReplacedByID)
	assert.Equal(t, replacement.ID, *replaced.ReplacedByID)

	_, err = f.payments.ReplaceMethod(ctx, order.ID, old.ID, ReplaceMethodRequest{Method: "card"}, staff)
	requireKind(t, err, apperror.KindConflict)

	paid, err := f.payments.OnPaymentSettled(ctx, order.ID, replacement.ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
}

func TestReplaceMethodOnPendingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "menu", 1, CreateOrderRequest{Method: "cash"})
	old := order.Payments[0]

	replacement, err := f.payments.ReplaceMethod(ctx, order.ID, old.ID, ReplaceMethodRequest{Method: "lightning"}, staff)
	require.NoError(t, err)
	require.NotNil(t, replacement.CheckoutID)

	replaced := f.payment(t, order.ID, old.ID)
	assert.Equal(t, model.PaymentStatusFailed, replaced.Status)
	assert.Equal(t, model.FailureReasonReplaced, replaced.FailureReason)
}

func TestReplaceMethodOnPaidPaymentConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "dinner", 2, CreateOrderRequest{Shares: 2})

	first, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash"}, staff)
	require.NoError(t, err)
	_, err = f.payments.OnPaymentSettled(ctx, order.ID, first.ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)

	_, err = f.payments.ReplaceMethod(ctx, order.ID, first.ID, ReplaceMethodRequest{Method: "card"}, staff)
	requireKind(t, err, apperror.KindConflict)
}

func TestPartialPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "dinner", 1, CreateOrderRequest{Method: "card"})

	_, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash"}, staff)
	requireKind(t, err, apperror.KindConflict)

	_, err = f.payments.OnPaymentFailed(ctx, order.ID, order.Payments[0].ID, FailPaymentRequest{}, staff)
	require.NoError(t, err)

	_, err = f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash", Amount: decPtr("60")}, staff)
	requireKind(t, err, apperror.KindValidation)

	cash, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash", Amount: decPtr("20")}, staff)
	require.NoError(t, err)
	rest, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "card"}, staff)
	require.NoError(t, err)
	assert.True(t, dec("30.00").Equal(rest.Amount.Main.Amount), rest.Amount.Main.String())

	afterCash, err := f.payments.OnPaymentSettled(ctx, order.ID, cash.ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, afterCash.Status)

	afterCard, err := f.payments.OnPaymentSettled(ctx, order.ID, rest.ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, afterCard.Status)
}

func TestAddPaymentRejectsFreeMethod(t *testing.T) {
	f := newFixture(t)
	order := f.tabOrder(t, "table-1", "coffee", 1, CreateOrderRequest{Shares: 2})
	_, err := f.payments.AddPayment(context.Background(), order.ID, AddPaymentRequest{Method: "free"}, staff)
	requireKind(t, err, apperror.KindValidation)
}

func TestSharesSplitEvenly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "dinner", 1, CreateOrderRequest{Shares: 3})
	assert.Empty(t, order.Payments)
	assert.True(t, order.SharesMode())

	var shares []*model.Payment
	for _, want := range []string{"16.67", "16.67", "16.66"} {
		p, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash"}, staff)
		require.NoError(t, err)
		assert.True(t, p.IsShare)
		assert.True(t, dec(want).Equal(p.Amount.Main.Amount), "got %s, want %s", p.Amount.Main.Amount, want)
		shares = append(shares, p)
	}

	_, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash"}, staff)
	requireKind(t, err, apperror.KindConflict)

	for i, p := range shares {
		updated, err := f.payments.OnPaymentSettled(ctx, order.ID, p.ID, SettlePaymentRequest{}, staff)
		require.NoError(t, err)
		if i < len(shares)-1 {
			assert.Equal(t, model.OrderStatusPending, updated.Status)
		} else {
			assert.Equal(t, model.OrderStatusPaid, updated.Status)
		}
	}
}

func TestSharesValidateDeclaredAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "dinner", 1, CreateOrderRequest{Shares: 2})

	_, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash", Amount: decPtr("50")}, staff)
	requireKind(t, err, apperror.KindValidation)

	_, err = f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash", Amount: decPtr("20")}, staff)
	require.NoError(t, err)

	_, err = f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "card", Amount: decPtr("25")}, staff)
	requireKind(t, err, apperror.KindValidation)

	last, err := f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "card", Amount: decPtr("30")}, staff)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(last.Amount.Main.Amount))
}

func TestSharesLockTabLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "dinner", 1, CreateOrderRequest{Shares: 2})

	view, err := f.tabs.GetOrderTab(ctx, "table-1")
	require.NoError(t, err)
	itemID := view.Items[0].ID

	_, err = f.payments.AddPayment(ctx, order.ID, AddPaymentRequest{Method: "cash"}, staff)
	require.NoError(t, err)

	err = f.tabs.RemoveLine(ctx, "table-1", itemID)
	requireKind(t, err, apperror.KindForbidden)
}

func TestExpirePendingPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.tabOrder(t, "table-1", "menu", 1, CreateOrderRequest{Method: "card"})
	cash := f.tabOrder(t, "table-2", "menu", 1, CreateOrderRequest{Method: "cash"})

	n, err := f.payments.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.payments.(*paymentService).now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	n, err = f.payments.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := f.repos.Orders.FindByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, expired.Status)
	assert.Equal(t, model.PaymentStatusCanceled, expired.Payments[0].Status)
	assert.Equal(t, model.FailureReasonExpired, expired.Payments[0].FailureReason)

	untouched, err := f.repos.Orders.FindByID(ctx, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, untouched.Status)

	n, err = f.payments.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplaceMethodAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.tabOrder(t, "table-1", "menu", 1, CreateOrderRequest{Method: "card"})
	old := order.Payments[0]

	f.payments.(*paymentService).now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	n, err := f.payments.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	replacement, err := f.payments.ReplaceMethod(ctx, order.ID, old.ID, ReplaceMethodRequest{Method: "cash"}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, replacement.Status)
	assert.True(t, old.Amount.Main.Amount.Equal(replacement.Amount.Main.Amount))

	expired := f.payment(t, order.ID, old.ID)
	assert.Equal(t, model.PaymentStatusCanceled, expired.Status)

	paid, err := f.payments.OnPaymentSettled(ctx, order.ID, replacement.ID, SettlePaymentRequest{}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
}
