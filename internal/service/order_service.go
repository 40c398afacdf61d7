package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/internal/vat"
	"settlement/pkg/apperror"
)

const maxShares = 100

type CreateOrderRequest struct {
	// Method of the first payment. Ignored in shares mode, where each share
	// picks its own method.
	Method          string         `json:"method"`
	PosSubtype      string         `json:"pos_subtype"`
	Shares          int            `json:"shares"`
	CustomerCountry string         `json:"customer_country"`
	ShippingAddress *model.Address `json:"shipping_address"`
	Note            string         `json:"note"`
}

type orderParams struct {
	method   model.PaymentMethod
	subtype  string
	shares   int
	country  vat.Country
	shipping *model.Address
	note     string
}

func (r CreateOrderRequest) parse() (orderParams, error) {
	var fields []apperror.FieldError
	p := orderParams{subtype: r.PosSubtype, shares: r.Shares, shipping: r.ShippingAddress, note: strings.TrimSpace(r.Note)}

	if r.Shares < 0 || r.Shares > maxShares {
		fields = append(fields, apperror.FieldError{Field: "shares", Message: "must be between 0 and 100"})
	}
	if r.Shares == 0 {
		m, ok := model.ParsePaymentMethod(r.Method)
		if !ok {
			fields = append(fields, apperror.FieldError{Field: "method", Message: "unsupported payment method"})
		}
		p.method = m
	}
	if r.CustomerCountry != "" {
		c, err := vat.ParseCountry(r.CustomerCountry)
		if err != nil {
			fields = append(fields, apperror.FieldError{Field: "customer_country", Message: err.Error()})
		}
		p.country = c
	}
	if r.ShippingAddress != nil && p.country.IsZero() {
		p.country = r.ShippingAddress.Country
	}
	if len(p.note) > 2000 {
		fields = append(fields, apperror.FieldError{Field: "note", Message: "must be at most 2000 characters"})
	}
	if len(fields) > 0 {
		return p, apperror.Validation("invalid order request", fields...)
	}
	return p, nil
}

type AddNoteRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

type OrderService interface {
	CreateOrderFromTab(ctx context.Context, slug string, req CreateOrderRequest, identity model.Identity) (*model.Order, error)
	CreateOrderFromCart(ctx context.Context, req CreateOrderRequest, identity model.Identity) (*model.Order, error)
	// GetOrder expires overdue payments before returning the order.
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListOrders(ctx context.Context, identity model.Identity, page, limit int) ([]model.Order, int64, error)
	CancelOrder(ctx context.Context, id uuid.UUID, identity model.Identity) (*model.Order, error)
	AddNote(ctx context.Context, id uuid.UUID, req AddNoteRequest, identity model.Identity) (*model.OrderNote, error)
}

type orderService struct {
	*ledger
}

func NewOrderService(stores Stores, rates RateService, processor PaymentProcessor, notifier Notifier, publisher live.Publisher, cfg config.Settlement, log logrus.FieldLogger) OrderService {
	return &orderService{ledger: newLedger(stores, rates, processor, notifier, publisher, cfg, log)}
}

type sourceLine struct {
	productID   string
	quantity    int
	variations  model.Variations
	customPrice *decimal.Decimal
}

type orderSource struct {
	lines         []sourceLine
	discount      *decimal.Decimal
	justification string
	tabSlug       *string
}

// buildOrder prices the source lines, consumes free units and persists the
// order with its first payment. It must run inside a transaction.
func (s *orderService) buildOrder(ctx context.Context, src orderSource, params orderParams, identity model.Identity) (*model.Order, error) {
	ids := make([]string, 0, len(src.lines))
	seen := map[string]bool{}
	for _, l := range src.lines {
		if !seen[l.productID] {
			seen[l.productID] = true
			ids = append(ids, l.productID)
		}
	}
	products, err := s.quoter.products(ctx, ids)
	if err != nil {
		return nil, err
	}

	quantities := map[string]int{}
	needsShipping := false
	for _, l := range src.lines {
		quantities[l.productID] += l.quantity
		p := products[l.productID]
		needsShipping = needsShipping || p.Shipping
		if l.customPrice != nil {
			if !p.PayWhatYouWant {
				return nil, apperror.Validation("custom price not allowed", apperror.FieldError{Field: "custom_price", Message: p.ID + " has a fixed price"})
			}
			if l.customPrice.LessThan(p.Price) {
				return nil, apperror.Validation("custom price below minimum", apperror.FieldError{Field: "custom_price", Message: "must be at least " + currency.Format(p.Price, p.Currency)})
			}
		}
	}
	for id, q := range quantities {
		if p := products[id]; !p.Allows(q) {
			return nil, apperror.Validation("maximum quantity per order exceeded", apperror.FieldError{Field: "quantity", Message: p.Name + " is limited per order"})
		}
	}
	if needsShipping && params.shipping == nil {
		return nil, apperror.Validation("shipping address required", apperror.FieldError{Field: "shipping_address", Message: "is required for shipped products"})
	}

	allowances, err := s.stores.Subscriptions.FindAllowances(ctx, identity, ids, s.now())
	if err != nil {
		return nil, err
	}

	lines := make([]quoteLine, 0, len(src.lines))
	for _, l := range src.lines {
		ql := quoteLine{Product: products[l.productID], Quantity: l.quantity, Variations: l.variations}
		if l.customPrice != nil {
			ql.CustomPrice = &currency.Money{Amount: *l.customPrice, Currency: ql.Product.Currency}
		}
		for i := range allowances {
			a := &allowances[i]
			if a.ProductID != l.productID || a.Remaining() == 0 {
				continue
			}
			n := min(a.Remaining(), l.quantity)
			ok, err := s.stores.Subscriptions.Consume(ctx, a.ID, n)
			if err != nil {
				return nil, err
			}
			if ok {
				a.Used += n
				id := a.ID
				ql.FreeQuantity, ql.FreeAllowanceID = n, &id
			}
			break
		}
		lines = append(lines, ql)
	}

	discount := decimal.Zero
	if src.discount != nil {
		discount = *src.discount
	}
	res, rates, err := s.quoter.quote(ctx, lines, discount, params.country)
	if err != nil {
		return nil, err
	}

	number, err := s.stores.Counters.Next(ctx, model.CounterOrderNumber)
	if err != nil {
		return nil, err
	}
	order := &model.Order{
		ID:                    uuid.New(),
		Number:                number,
		Status:                model.OrderStatusPending,
		Currency:              res.Totals.Main.Currency,
		Totals:                res.Totals,
		Vat:                   res.Vat,
		DiscountPercentage:    src.discount,
		DiscountJustification: src.justification,
		ShippingAddress:       params.shipping,
		CustomerCountry:       params.country,
		SessionID:             identity.SessionID,
		UserID:                identity.UserID,
		UserRoleID:            identity.UserRoleID,
		ExpectedShares:        params.shares,
		TabSlug:               src.tabSlug,
	}
	for i, lr := range res.Lines {
		p := lines[i].Product
		order.Items = append(order.Items, model.OrderItem{
			ProductID:       lr.ProductID,
			Name:            p.Name,
			PrintTag:        p.PrintTag,
			Quantity:        lr.Quantity,
			FreeQuantity:    lr.FreeQuantity,
			FreeAllowanceID: lines[i].FreeAllowanceID,
			VatCountry:      lr.VatCountry,
			VatRate:         lr.VatRate,
			Snapshot:        lr.Snapshot,
			Variations:      lines[i].Variations,
		})
	}

	total := order.Totals.Main.Total
	switch {
	case total.IsZero():
		order.Status = model.OrderStatusPaid
	case params.method == model.PaymentMethodFree:
		return nil, apperror.Validation("free payment requires a zero total", apperror.FieldError{Field: "method", Message: "order total is " + order.Total().String()})
	case !order.SharesMode():
		order.Payments = []model.Payment{s.newPayment(order, params.method, params.subtype, total, false, rates)}
	}

	if err := s.stores.Orders.Create(ctx, order); err != nil {
		return nil, err
	}
	if params.note != "" {
		note := &model.OrderNote{OrderID: order.ID, Content: params.note, SessionID: identity.SessionID, UserID: identity.UserID}
		if err := s.stores.Orders.AddNote(ctx, note); err != nil {
			return nil, err
		}
		order.Notes = append(order.Notes, *note)
	}

	err = writeAudit(ctx, s.stores.Audit, identity, model.ActionCreateOrder, order.ID.String(), "", map[string]interface{}{
		"order_number": order.Number,
		"total":        order.Total().String(),
		"shares":       order.ExpectedShares,
	})
	return order, err
}

// created runs the after-commit side effects of a new order.
func (s *orderService) created(ctx context.Context, order *model.Order) {
	payments := make([]*model.Payment, 0, len(order.Payments))
	for i := range order.Payments {
		payments = append(payments, &order.Payments[i])
	}
	s.openCheckouts(ctx, order, payments)

	s.log.WithFields(logrus.Fields{"order": order.Number, "total": order.Total().String()}).Info("Order created")
	s.changed(order, live.EventOrderCreated)
	s.notify(ctx, notifyOrderCreated, order)
	if order.Status == model.OrderStatusPaid {
		s.afterPaid(ctx, order)
	}
}

func (s *orderService) CreateOrderFromTab(ctx context.Context, slug string, req CreateOrderRequest, identity model.Identity) (*model.Order, error) {
	params, err := req.parse()
	if err != nil {
		return nil, err
	}
	// A paid or canceled previous order must release the tab first.
	if _, err := s.concluder.conclude(ctx, slug); err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		tab, err := s.stores.Tabs.FindBySlugForUpdate(txCtx, slug)
		if err != nil {
			return notFound(err, "order tab "+slug)
		}
		if tab.OrderID != nil {
			return apperror.Conflict("tab %s already has a pending order", slug)
		}

		src := orderSource{discount: tab.DiscountPercentage, justification: tab.DiscountJustification, tabSlug: &tab.Slug}
		for _, item := range tab.Items {
			if item.Quantity > 0 {
				src.lines = append(src.lines, sourceLine{productID: item.ProductID, quantity: item.Quantity, variations: item.ChosenVariations})
			}
		}
		if len(src.lines) == 0 {
			return apperror.Validation("tab is empty")
		}

		order, err = s.buildOrder(txCtx, src, params, identity)
		if err != nil {
			return err
		}
		linked, err := s.stores.Tabs.LinkOrder(txCtx, tab.ID, order.ID)
		if err != nil {
			return err
		}
		if !linked {
			return apperror.Conflict("tab %s already has a pending order", slug)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.created(ctx, order)
	return order, nil
}

func (s *orderService) CreateOrderFromCart(ctx context.Context, req CreateOrderRequest, identity model.Identity) (*model.Order, error) {
	params, err := req.parse()
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.stores.Carts.FindBySession(txCtx, identity.SessionID)
		if err != nil {
			return notFound(err, "cart")
		}
		var src orderSource
		for _, item := range cart.Items {
			if item.Quantity > 0 {
				src.lines = append(src.lines, sourceLine{
					productID:   item.ProductID,
					quantity:    item.Quantity,
					variations:  item.ChosenVariations,
					customPrice: item.CustomPrice,
				})
			}
		}
		if len(src.lines) == 0 {
			return apperror.Validation("cart is empty")
		}

		order, err = s.buildOrder(txCtx, src, params, identity)
		if err != nil {
			return err
		}
		return s.stores.Carts.Clear(txCtx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	s.created(ctx, order)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.findOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := s.expireDue(ctx, order)
	if err != nil {
		return nil, err
	}
	if changed {
		if order, err = s.findOrder(ctx, id); err != nil {
			return nil, err
		}
	}
	if order.Status == model.OrderStatusPaid && order.TabSlug != nil {
		if _, err := s.concluder.conclude(ctx, *order.TabSlug); err != nil && !apperror.IsKind(err, apperror.KindNotFound) {
			s.log.WithError(err).WithField("tab", *order.TabSlug).Warn("Failed to conclude order tab")
		}
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, identity model.Identity, page, limit int) ([]model.Order, int64, error) {
	return s.stores.Orders.ListByIdentity(ctx, identity, page, limit)
}

func (s *orderService) CancelOrder(ctx context.Context, id uuid.UUID, identity model.Identity) (*model.Order, error) {
	canceled := false
	err := s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		canceled = false
		order, err := s.findOrder(txCtx, id)
		if err != nil {
			return err
		}
		switch order.Status {
		case model.OrderStatusCanceled:
			return nil
		case model.OrderStatusPaid:
			return apperror.Conflict("order #%d is already paid", order.Number)
		}
		if paidAmount(order).IsPositive() {
			return apperror.Conflict("order #%d has settled payments", order.Number)
		}
		canceled = true
		return s.cancelLocked(txCtx, order, identity, "canceled by "+identity.Actor())
	})
	if err != nil {
		return nil, err
	}

	order, err := s.findOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if canceled {
		s.changed(order, live.EventOrderUpdated)
		s.notify(ctx, notifyOrderCanceled, order)
	}
	return order, nil
}

func (s *orderService) AddNote(ctx context.Context, id uuid.UUID, req AddNoteRequest, identity model.Identity) (*model.OrderNote, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" || len(content) > 2000 {
		return nil, apperror.Validation("invalid note", apperror.FieldError{Field: "content", Message: "must be 1 to 2000 characters"})
	}
	order, err := s.findOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	note := &model.OrderNote{OrderID: order.ID, Content: content, SessionID: identity.SessionID, UserID: identity.UserID}
	if err := s.stores.Orders.AddNote(ctx, note); err != nil {
		return nil, err
	}
	s.changed(order, live.EventOrderUpdated)
	return note, nil
}
