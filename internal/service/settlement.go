package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/internal/pricing"
	"settlement/internal/repository"
	"settlement/pkg/apperror"
)

const (
	notifyOrderCreated  = "order.created"
	notifyOrderPaid     = "order.paid"
	notifyOrderCanceled = "order.canceled"
)

// ledger holds the order and payment state machine shared by OrderService
// and PaymentService.
type ledger struct {
	stores    Stores
	quoter    *quoter
	concluder *tabConcluder
	processor PaymentProcessor
	notifier  Notifier
	publisher live.Publisher
	cfg       config.Settlement
	log       logrus.FieldLogger
	now       func() time.Time
}

func newLedger(stores Stores, rates RateService, processor PaymentProcessor, notifier Notifier, publisher live.Publisher, cfg config.Settlement, log logrus.FieldLogger) *ledger {
	return &ledger{
		stores:    stores,
		quoter:    &quoter{catalog: stores.Products, rates: rates, builder: pricing.NewBuilder(), cfg: cfg},
		concluder: &tabConcluder{stores: stores, publisher: publisher, log: log},
		processor: processor,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func (l *ledger) findOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := l.stores.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	return order, nil
}

func (l *ledger) findPayment(ctx context.Context, orderID, id uuid.UUID) (*model.Payment, error) {
	payment, err := l.stores.Payments.FindByID(ctx, orderID, id)
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return payment, nil
}

// isLive reports whether a payment still counts towards the order total.
func isLive(p model.Payment) bool {
	return p.Status == model.PaymentStatusPending || p.Status == model.PaymentStatusPaid
}

// outstanding is what remains once paid and pending payments are counted.
func outstanding(order *model.Order) decimal.Decimal {
	due := order.Totals.Main.Total
	for _, p := range order.Payments {
		if isLive(p) {
			due = due.Sub(p.Amount.Main.Amount)
		}
	}
	return due
}

func paidAmount(order *model.Order) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range order.Payments {
		if p.Status == model.PaymentStatusPaid {
			paid = paid.Add(p.Amount.Main.Amount)
		}
	}
	return paid
}

func declaredShares(order *model.Order) (declared, paid int) {
	for _, p := range order.Payments {
		if !p.IsShare || !isLive(p) {
			continue
		}
		declared++
		if p.Status == model.PaymentStatusPaid {
			paid++
		}
	}
	return declared, paid
}

// covered reports whether settled payments pay the whole order. In shares
// mode every expected share must also be paid.
func covered(order *model.Order) bool {
	if paidAmount(order).LessThan(order.Totals.Main.Total) {
		return false
	}
	if order.SharesMode() {
		_, paid := declaredShares(order)
		return paid >= order.ExpectedShares
	}
	return true
}

func (l *ledger) newPayment(order *model.Order, method model.PaymentMethod, subtype string, amount decimal.Decimal, isShare bool, rates currency.RateTable) model.Payment {
	p := model.Payment{
		ID:         uuid.New(),
		OrderID:    order.ID,
		Method:     method,
		PosSubtype: subtype,
		Status:     model.PaymentStatusPending,
		Amount:     pricing.NewAmountSnapshot(currency.Money{Amount: amount, Currency: order.Currency}, order.Totals.Storage.Currency, rates),
		IsShare:    isShare,
	}
	if method.RequiresCheckout() && l.cfg.PaymentExpiry > 0 {
		expires := l.now().Add(l.cfg.PaymentExpiry)
		p.ExpiresAt = &expires
	}
	return p
}

// openCheckouts asks the processor for a checkout on each pending payment that
// needs one. An outage leaves the payment pending without a checkout.
func (l *ledger) openCheckouts(ctx context.Context, order *model.Order, payments []*model.Payment) {
	for _, p := range payments {
		if p.Status != model.PaymentStatusPending || !p.Method.RequiresCheckout() || p.CheckoutID != nil {
			continue
		}
		checkout, err := l.processor.CreateCheckout(ctx, CheckoutRequest{
			PaymentID:   p.ID,
			OrderID:     order.ID,
			OrderNumber: order.Number,
			Method:      p.Method,
			Amount:      p.Amount.Main,
			ExpiresAt:   p.ExpiresAt,
		})
		if err != nil {
			l.log.WithError(apperror.ExternalUnavailable("payment processor", err)).
				WithFields(logrus.Fields{"order": order.Number, "payment": p.ID}).
				Warn("Payment left pending without checkout")
			continue
		}
		expires := p.ExpiresAt
		if checkout.ExpiresAt != nil {
			expires = checkout.ExpiresAt
		}
		if err := l.stores.Payments.SetCheckout(ctx, p.ID, checkout.ID, checkout.Processor, expires); err != nil {
			l.log.WithError(err).WithField("payment", p.ID).Error("Failed to record checkout")
			continue
		}
		p.CheckoutID, p.Processor, p.ExpiresAt = &checkout.ID, checkout.Processor, expires
	}
}

// changed fans out live updates for an order and the tab it came from.
func (l *ledger) changed(order *model.Order, eventType string) {
	l.publisher.Publish(live.OrderTopic(order.ID), eventType)
	l.publisher.Publish(live.UserTopic(order.SessionID), eventType)
	if order.TabSlug != nil {
		l.publisher.Publish(live.TabTopic(*order.TabSlug), live.EventTabUpdated)
	}
}

func (l *ledger) notify(ctx context.Context, event string, order *model.Order) {
	msg := Notification{Event: event, OrderID: order.ID, Number: order.Number, Status: order.Status, Identity: order.Identity()}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := l.notifier.Notify(ctx, msg); err != nil {
			l.log.WithError(err).WithField("order", msg.Number).Warn("Notification failed")
		}
	}()
}

// afterPaid runs the side effects of an order reaching paid.
func (l *ledger) afterPaid(ctx context.Context, order *model.Order) {
	if order.TabSlug != nil {
		if _, err := l.concluder.conclude(ctx, *order.TabSlug); err != nil && !apperror.IsKind(err, apperror.KindNotFound) {
			l.log.WithError(err).WithField("tab", *order.TabSlug).Error("Failed to conclude order tab")
		}
	}
	l.notify(ctx, notifyOrderPaid, order)
}

// settle marks a pending payment paid and the order paid once covered.
// Settling an already paid payment is a no-op.
func (l *ledger) settle(ctx context.Context, orderID, paymentID uuid.UUID, cashback *decimal.Decimal, identity model.Identity) (*model.Order, error) {
	becamePaid := false
	err := l.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		becamePaid = false
		payment, err := l.findPayment(txCtx, orderID, paymentID)
		if err != nil {
			return err
		}
		switch payment.Status {
		case model.PaymentStatusPaid:
			return nil
		case model.PaymentStatusPending:
		default:
			return apperror.Conflict("payment is %s", payment.Status)
		}

		invoice, err := l.stores.Counters.Next(txCtx, model.CounterInvoiceNumber)
		if err != nil {
			return err
		}
		now := l.now()
		ok, err := l.stores.Payments.Transition(txCtx, payment.ID, []model.PaymentStatus{model.PaymentStatusPending}, repository.PaymentTransition{
			Status:           model.PaymentStatusPaid,
			PaidAt:           &now,
			InvoiceNumber:    &invoice,
			InvoiceCreatedAt: &now,
			Cashback:         cashback,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("payment changed concurrently")
		}

		order, err := l.findOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if err := writeAudit(txCtx, l.stores.Audit, identity, model.ActionSettlePayment, payment.ID.String(), string(payment.Method), map[string]interface{}{
			"order_number": order.Number,
			"amount":       payment.Amount.Main.String(),
			"invoice":      invoice,
		}); err != nil {
			return err
		}
		if order.Status != model.OrderStatusPending || !covered(order) {
			return nil
		}
		becamePaid, err = l.stores.Orders.TransitionStatus(txCtx, orderID, []model.OrderStatus{model.OrderStatusPending}, model.OrderStatusPaid)
		return err
	})
	if err != nil {
		return nil, err
	}

	order, err := l.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	l.changed(order, live.EventPaymentUpdated)
	if becamePaid {
		l.log.WithFields(logrus.Fields{"order": order.Number, "total": order.Total().String()}).Info("Order paid")
		l.afterPaid(ctx, order)
	}
	return order, nil
}

// fail moves a pending payment to failed (processor refusal) or canceled
// (expiry, manual cancel). The order stays pending so the payment can be
// replaced; only CancelOrder cancels it.
func (l *ledger) fail(ctx context.Context, orderID, paymentID uuid.UUID, reason model.FailureReason, preserve bool, identity model.Identity) (*model.Order, error) {
	target := model.PaymentStatusCanceled
	if reason == model.FailureReasonFailed {
		target = model.PaymentStatusFailed
	}

	err := l.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := l.findPayment(txCtx, orderID, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == target {
			return nil
		}
		if payment.Status != model.PaymentStatusPending {
			return apperror.Conflict("payment is already %s", payment.Status)
		}

		ok, err := l.stores.Payments.Transition(txCtx, payment.ID, []model.PaymentStatus{model.PaymentStatusPending}, repository.PaymentTransition{
			Status:        target,
			FailureReason: reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("payment changed concurrently")
		}
		return writeAudit(txCtx, l.stores.Audit, identity, model.ActionFailPayment, payment.ID.String(), string(payment.Method), map[string]interface{}{
			"reason":   reason,
			"preserve": preserve,
		})
	})
	if err != nil {
		return nil, err
	}

	order, err := l.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	l.changed(order, live.EventPaymentUpdated)
	return order, nil
}

// cancelLocked cancels a pending order inside the caller's transaction: pending
// payments are canceled, consumed free units released and the tab unlinked.
func (l *ledger) cancelLocked(ctx context.Context, order *model.Order, identity model.Identity, reason string) error {
	ok, err := l.stores.Orders.TransitionStatus(ctx, order.ID, []model.OrderStatus{model.OrderStatusPending}, model.OrderStatusCanceled)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Conflict("order #%d is no longer pending", order.Number)
	}

	for _, p := range order.Payments {
		if p.Status != model.PaymentStatusPending {
			continue
		}
		if _, err := l.stores.Payments.Transition(ctx, p.ID, []model.PaymentStatus{model.PaymentStatusPending}, repository.PaymentTransition{
			Status:        model.PaymentStatusCanceled,
			FailureReason: model.FailureReasonCanceled,
		}); err != nil {
			return err
		}
	}

	released := map[string]int{}
	for _, item := range order.Items {
		if item.FreeAllowanceID == nil || item.FreeQuantity == 0 {
			continue
		}
		if err := l.stores.Subscriptions.Release(ctx, *item.FreeAllowanceID, item.FreeQuantity); err != nil {
			return err
		}
		released[item.ProductID] += item.FreeQuantity
	}
	if len(released) > 0 {
		if err := writeAudit(ctx, l.stores.Audit, identity, model.ActionRollbackFreeUnit, order.ID.String(), "", released); err != nil {
			return err
		}
	}

	if order.TabSlug != nil {
		tab, err := l.stores.Tabs.FindByOrderID(ctx, order.ID)
		switch {
		case err == nil:
			if err := l.stores.Tabs.UnlinkOrder(ctx, tab.ID, order.ID); err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}

	return writeAudit(ctx, l.stores.Audit, identity, model.ActionCancelOrder, order.ID.String(), "", map[string]interface{}{
		"order_number": order.Number,
		"reason":       reason,
	})
}

// expireDue cancels pending payments of the order whose deadline passed.
// It reports whether anything changed.
func (l *ledger) expireDue(ctx context.Context, order *model.Order) (bool, error) {
	now := l.now()
	changed := false
	for _, p := range order.Payments {
		if !p.Expired(now) {
			continue
		}
		_, err := l.fail(ctx, order.ID, p.ID, model.FailureReasonExpired, false, systemIdentity)
		if err != nil && !apperror.IsKind(err, apperror.KindConflict) {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}
