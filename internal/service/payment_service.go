package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/internal/repository"
	"settlement/pkg/apperror"
)

const expirySweepBatch = 100

type AddPaymentRequest struct {
	Method     string `json:"method" binding:"required"`
	PosSubtype string `json:"pos_subtype"`
	// Amount defaults to the outstanding amount, or to an even split of it in
	// shares mode.
	Amount *decimal.Decimal `json:"amount"`
}

type SettlePaymentRequest struct {
	// Cashback is the change handed back to the customer in cash.
	Cashback *decimal.Decimal `json:"cashback"`
}

type FailPaymentRequest struct {
	Reason              model.FailureReason `json:"reason"`
	PreserveOrderStatus bool                `json:"preserve_order_status"`
}

type ReplaceMethodRequest struct {
	Method     string `json:"method" binding:"required"`
	PosSubtype string `json:"pos_subtype"`
}

// ProcessorUpdate is the settlement callback contract of payment processors.
type ProcessorUpdate struct {
	CheckoutID string `json:"checkout_id" binding:"required"`
	Status     string `json:"status" binding:"required,oneof=pending paid failed expired canceled"`
}

type PaymentService interface {
	AddPayment(ctx context.Context, orderID uuid.UUID, req AddPaymentRequest, identity model.Identity) (*model.Payment, error)
	// OnPaymentSettled is idempotent: settling a paid payment returns the order unchanged.
	OnPaymentSettled(ctx context.Context, orderID, paymentID uuid.UUID, req SettlePaymentRequest, identity model.Identity) (*model.Order, error)
	OnPaymentFailed(ctx context.Context, orderID, paymentID uuid.UUID, req FailPaymentRequest, identity model.Identity) (*model.Order, error)
	ReplaceMethod(ctx context.Context, orderID, paymentID uuid.UUID, req ReplaceMethodRequest, identity model.Identity) (*model.Payment, error)
	HandleProcessorUpdate(ctx context.Context, update ProcessorUpdate) (*model.Order, error)
	// ExpirePendingPayments cancels pending payments past their deadline and
	// returns how many were expired.
	ExpirePendingPayments(ctx context.Context) (int, error)
}

type paymentService struct {
	*ledger
}

func NewPaymentService(stores Stores, rates RateService, processor PaymentProcessor, notifier Notifier, publisher live.Publisher, cfg config.Settlement, log logrus.FieldLogger) PaymentService {
	return &paymentService{ledger: newLedger(stores, rates, processor, notifier, publisher, cfg, log)}
}

func parseMethod(raw string) (model.PaymentMethod, error) {
	m, ok := model.ParsePaymentMethod(raw)
	if !ok {
		return "", apperror.Validation("unsupported payment method", apperror.FieldError{Field: "method", Message: "unsupported payment method"})
	}
	return m, nil
}

func (s *paymentService) AddPayment(ctx context.Context, orderID uuid.UUID, req AddPaymentRequest, identity model.Identity) (*model.Payment, error) {
	method, err := parseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if method == model.PaymentMethodFree {
		return nil, apperror.Validation("free is not a collectable method", apperror.FieldError{Field: "method", Message: "not allowed"})
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, apperror.Validation("invalid amount", apperror.FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.expireDue(ctx, order); err != nil {
		return nil, err
	}
	rates := s.quoter.rates.Table(ctx)

	var payment model.Payment
	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.findOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.OrderStatusPending {
			return apperror.Conflict("order #%d is %s", order.Number, order.Status)
		}
		due := outstanding(order)
		if !due.IsPositive() {
			return apperror.Conflict("order #%d has nothing left to collect", order.Number)
		}

		amount, err := s.paymentAmount(order, due, req.Amount)
		if err != nil {
			return err
		}

		payment = s.newPayment(order, method, req.PosSubtype, amount, order.SharesMode(), rates)
		if err := s.stores.Payments.Create(txCtx, &payment); err != nil {
			return err
		}
		return writeAudit(txCtx, s.stores.Audit, identity, model.ActionAddPayment, payment.ID.String(), string(method), map[string]interface{}{
			"order_number": order.Number,
			"amount":       payment.Amount.Main.String(),
			"share":        payment.IsShare,
		})
	})
	if err != nil {
		return nil, err
	}

	s.openCheckouts(ctx, order, []*model.Payment{&payment})
	s.changed(order, live.EventPaymentUpdated)
	return &payment, nil
}

// paymentAmount resolves and validates the amount of a new payment against
// what is still due.
func (s *paymentService) paymentAmount(order *model.Order, due decimal.Decimal, requested *decimal.Decimal) (decimal.Decimal, error) {
	if !order.SharesMode() {
		if requested == nil {
			return due, nil
		}
		amount := currency.Round(*requested, order.Currency)
		if amount.GreaterThan(due) {
			return decimal.Zero, apperror.Validation("amount exceeds outstanding balance", apperror.FieldError{
				Field:   "amount",
				Message: "must be at most " + currency.Format(due, order.Currency),
			})
		}
		return amount, nil
	}

	declared, _ := declaredShares(order)
	remaining := order.ExpectedShares - declared
	if remaining <= 0 {
		return decimal.Zero, apperror.Validation("all shares are already declared", apperror.FieldError{
			Field:   "shares",
			Message: strconv.Itoa(declared) + " of " + strconv.Itoa(order.ExpectedShares) + " declared",
		})
	}
	last := remaining == 1

	if requested == nil {
		if last {
			return due, nil
		}
		return due.Div(decimal.NewFromInt(int64(remaining))).Round(order.Currency.DisplayPrecision()), nil
	}
	amount := currency.Round(*requested, order.Currency)
	switch {
	case last && !amount.Equal(due):
		return decimal.Zero, apperror.Validation("last share must cover the remaining balance", apperror.FieldError{
			Field:   "amount",
			Message: "must equal " + currency.Format(due, order.Currency),
		})
	case !last && !amount.LessThan(due):
		return decimal.Zero, apperror.Validation("share leaves nothing for the remaining shares", apperror.FieldError{
			Field:   "amount",
			Message: "must be less than " + currency.Format(due, order.Currency),
		})
	}
	return amount, nil
}

func (s *paymentService) OnPaymentSettled(ctx context.Context, orderID, paymentID uuid.UUID, req SettlePaymentRequest, identity model.Identity) (*model.Order, error) {
	if req.Cashback != nil && req.Cashback.IsNegative() {
		return nil, apperror.Validation("invalid cashback", apperror.FieldError{Field: "cashback", Message: "must not be negative"})
	}
	return s.settle(ctx, orderID, paymentID, req.Cashback, identity)
}

func (s *paymentService) OnPaymentFailed(ctx context.Context, orderID, paymentID uuid.UUID, req FailPaymentRequest, identity model.Identity) (*model.Order, error) {
	reason := req.Reason
	switch reason {
	case "":
		reason = model.FailureReasonFailed
	case model.FailureReasonFailed, model.FailureReasonExpired, model.FailureReasonCanceled:
	default:
		return nil, apperror.Validation("invalid failure reason", apperror.FieldError{Field: "reason", Message: "must be failed, expired or canceled"})
	}
	return s.fail(ctx, orderID, paymentID, reason, req.PreserveOrderStatus, identity)
}

func (s *paymentService) ReplaceMethod(ctx context.Context, orderID, paymentID uuid.UUID, req ReplaceMethodRequest, identity model.Identity) (*model.Payment, error) {
	method, err := parseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if method == model.PaymentMethodFree {
		return nil, apperror.Validation("free is not a collectable method", apperror.FieldError{Field: "method", Message: "not allowed"})
	}

	var (
		replacement model.Payment
		parent      *model.Order
	)
	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		o, err := s.findOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderStatusPending {
			return apperror.Conflict("order #%d is %s", o.Number, o.Status)
		}
		old, err := s.findPayment(txCtx, orderID, paymentID)
		if err != nil {
			return err
		}
		if old.ReplacedByID != nil {
			return apperror.Conflict("payment was already replaced")
		}

		switch old.Status {
		case model.PaymentStatusPaid:
			return apperror.Conflict("payment is already paid")
		case model.PaymentStatusPending:
			ok, err := s.stores.Payments.Transition(txCtx, old.ID, []model.PaymentStatus{model.PaymentStatusPending}, repository.PaymentTransition{
				Status:        model.PaymentStatusFailed,
				FailureReason: model.FailureReasonReplaced,
			})
			if err != nil {
				return err
			}
			if !ok {
				return apperror.Conflict("payment changed concurrently")
			}
			if o, err = s.findOrder(txCtx, orderID); err != nil {
				return err
			}
		}

		if due := outstanding(o); old.Amount.Main.Amount.GreaterThan(due) {
			return apperror.Conflict("only %s is still due", currency.Format(due, o.Currency))
		}

		replacement = s.newPayment(o, method, req.PosSubtype, old.Amount.Main.Amount, old.IsShare, currency.RateTable{})
		replacement.Amount = old.Amount
		if err := s.stores.Payments.Create(txCtx, &replacement); err != nil {
			return err
		}
		if err := s.stores.Payments.SetReplacedBy(txCtx, old.ID, replacement.ID); err != nil {
			return err
		}
		parent = o
		return writeAudit(txCtx, s.stores.Audit, identity, model.ActionReplacePayment, old.ID.String(), string(method), map[string]interface{}{
			"order_number": o.Number,
			"from":         old.Method,
			"to":           method,
			"replacement":  replacement.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.openCheckouts(ctx, parent, []*model.Payment{&replacement})
	s.changed(parent, live.EventPaymentUpdated)
	return &replacement, nil
}

func (s *paymentService) HandleProcessorUpdate(ctx context.Context, update ProcessorUpdate) (*model.Order, error) {
	payment, err := s.stores.Payments.FindByCheckoutID(ctx, update.CheckoutID)
	if err != nil {
		return nil, notFound(err, "checkout "+update.CheckoutID)
	}
	log := s.log.WithFields(logrus.Fields{"checkout": update.CheckoutID, "status": update.Status})

	switch update.Status {
	case "paid":
		log.Info("Processor settled payment")
		return s.settle(ctx, payment.OrderID, payment.ID, nil, systemIdentity)
	case "failed":
		log.Info("Processor refused payment")
		return s.fail(ctx, payment.OrderID, payment.ID, model.FailureReasonFailed, false, systemIdentity)
	case "expired":
		return s.fail(ctx, payment.OrderID, payment.ID, model.FailureReasonExpired, false, systemIdentity)
	case "canceled":
		return s.fail(ctx, payment.OrderID, payment.ID, model.FailureReasonCanceled, false, systemIdentity)
	case "pending":
		return s.findOrder(ctx, payment.OrderID)
	}
	return nil, apperror.Validation("unknown processor status", apperror.FieldError{Field: "status", Message: "unsupported value"})
}

func (s *paymentService) ExpirePendingPayments(ctx context.Context) (int, error) {
	due, err := s.stores.Payments.ListExpiredPending(ctx, s.now(), expirySweepBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, p := range due {
		_, err := s.fail(ctx, p.OrderID, p.ID, model.FailureReasonExpired, false, systemIdentity)
		if apperror.IsKind(err, apperror.KindConflict) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}
