package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"settlement/internal/model"
	"settlement/internal/repository"
)

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(ctx context.Context, order *model.Order) error {
	defer r.s.lock(ctx)()
	for _, o := range r.s.data.orders {
		if o.Number == order.Number {
			return gorm.ErrDuplicatedKey
		}
	}
	order.ID = newID(order.ID)
	now := r.s.stamp()
	order.CreatedAt, order.UpdatedAt = now, now

	items := make([]model.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.ID = newID(item.ID)
		item.OrderID = order.ID
		items[i] = item
	}
	order.Items = items
	for i := range order.Payments {
		p := &order.Payments[i]
		p.OrderID = order.ID
		if err := insertPayment(r.s, p); err != nil {
			return err
		}
	}

	stored := *order
	stored.Items, stored.Payments, stored.Notes = nil, nil, nil
	r.s.data.orders[order.ID] = stored
	r.s.data.orderItems[order.ID] = slices.Clone(items)
	return nil
}

func (r *orderRepo) assemble(o model.Order) *model.Order {
	o.Items = slices.Clone(r.s.data.orderItems[o.ID])
	o.Payments = paymentsOf(r.s, o.ID)
	o.Notes = nil
	for _, n := range r.s.data.notes {
		if n.OrderID == o.ID {
			o.Notes = append(o.Notes, n)
		}
	}
	return &o
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.data.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.assemble(o), nil
}

func (r *orderRepo) ListByIdentity(ctx context.Context, identity model.Identity, page, limit int) ([]model.Order, int64, error) {
	defer r.s.lock(ctx)()
	var matched []model.Order
	for _, o := range r.s.data.orders {
		mine := o.SessionID == identity.SessionID
		if identity.UserID != nil && o.UserID != nil && *o.UserID == *identity.UserID {
			mine = true
		}
		if mine {
			matched = append(matched, *r.assemble(o))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, page, limit), int64(len(matched)), nil
}

func (r *orderRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.data.orders[id]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	if to == model.OrderStatusCanceled {
		now := o.UpdatedAt
		o.CanceledAt = &now
	}
	r.s.data.orders[id] = o
	return true, nil
}

func (r *orderRepo) AddNote(ctx context.Context, note *model.OrderNote) error {
	defer r.s.lock(ctx)()
	note.ID = newID(note.ID)
	note.CreatedAt = r.s.stamp()
	r.s.data.notes = append(slices.Clone(r.s.data.notes), *note)
	return nil
}

func paginate[T any](items []T, page, limit int) []T {
	offset := (page - 1) * limit
	if offset >= len(items) || offset < 0 {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type paymentRepo struct{ s *Store }

func insertPayment(s *Store, p *model.Payment) error {
	if p.CheckoutID != nil {
		for _, existing := range s.data.payments {
			if existing.CheckoutID != nil && *existing.CheckoutID == *p.CheckoutID {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	p.ID = newID(p.ID)
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}
	now := s.stamp()
	p.CreatedAt, p.UpdatedAt = now, now
	s.data.payments[p.ID] = *p
	return nil
}

func paymentsOf(s *Store, orderID uuid.UUID) []model.Payment {
	var out []model.Payment
	for _, p := range s.data.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *paymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	defer r.s.lock(ctx)()
	return insertPayment(r.s, payment)
}

func (r *paymentRepo) FindByID(ctx context.Context, orderID, id uuid.UUID) (*model.Payment, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.payments[id]
	if !ok || p.OrderID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *paymentRepo) FindByCheckoutID(ctx context.Context, checkoutID string) (*model.Payment, error) {
	defer r.s.lock(ctx)()
	for _, p := range r.s.data.payments {
		if p.CheckoutID != nil && *p.CheckoutID == checkoutID {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	defer r.s.lock(ctx)()
	return paymentsOf(r.s, orderID), nil
}

func (r *paymentRepo) Transition(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, t repository.PaymentTransition) (bool, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.payments[id]
	if !ok || !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = t.Status
	if t.PaidAt != nil {
		p.PaidAt = t.PaidAt
	}
	if t.InvoiceNumber != nil {
		p.InvoiceNumber = t.InvoiceNumber
		p.InvoiceCreatedAt = t.InvoiceCreatedAt
	}
	if t.FailureReason != "" {
		p.FailureReason = t.FailureReason
	}
	if t.ReplacedByID != nil {
		p.ReplacedByID = t.ReplacedByID
	}
	if t.Cashback != nil {
		p.Cashback = t.Cashback
	}
	p.UpdatedAt = time.Now()
	r.s.data.payments[id] = p
	return true, nil
}

func (r *paymentRepo) SetCheckout(ctx context.Context, id uuid.UUID, checkoutID, processor string, expiresAt *time.Time) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.CheckoutID = &checkoutID
	p.Processor = processor
	p.ExpiresAt = expiresAt
	r.s.data.payments[id] = p
	return nil
}

func (r *paymentRepo) SetReplacedBy(ctx context.Context, id, replacementID uuid.UUID) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.ReplacedByID = &replacementID
	r.s.data.payments[id] = p
	return nil
}

func (r *paymentRepo) ListPaidBetween(ctx context.Context, from, to time.Time) ([]model.Payment, error) {
	defer r.s.lock(ctx)()
	var out []model.Payment
	for _, p := range r.s.data.payments {
		if p.Status == model.PaymentStatusPaid && p.PaidAt != nil && !p.PaidAt.Before(from) && !p.PaidAt.After(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(*out[j].PaidAt) })
	return out, nil
}

func (r *paymentRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Payment, error) {
	defer r.s.lock(ctx)()
	var out []model.Payment
	for _, p := range r.s.data.payments {
		if p.Expired(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type counterRepo struct{ s *Store }

func (r *counterRepo) Next(ctx context.Context, name string) (int64, error) {
	defer r.s.lock(ctx)()
	r.s.data.counters[name]++
	return r.s.data.counters[name], nil
}
