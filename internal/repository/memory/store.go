// Package memory implements every repository on top of process memory. It
// backs service tests and the DB_DRIVER=memory mode. A transaction holds the
// store lock for its whole duration and restores the previous state when the
// callback fails.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"settlement/internal/currency"
	"settlement/internal/model"
)

type txMarker struct{}

type state struct {
	products      map[string]model.Product
	tabs          map[uuid.UUID]model.OrderTab
	tabItems      map[uuid.UUID]model.OrderTabItem
	printEntries  []model.TabPrintEntry
	orders        map[uuid.UUID]model.Order
	orderItems    map[uuid.UUID][]model.OrderItem
	payments      map[uuid.UUID]model.Payment
	notes         []model.OrderNote
	sessions      map[uuid.UUID]model.PosSession
	carts         map[uuid.UUID]model.Cart
	cartItems     map[uuid.UUID]model.CartItem
	subscriptions map[uuid.UUID]model.Subscription
	allowances    map[uuid.UUID]model.FreeAllowance
	vatProfiles   map[uuid.UUID]model.VatProfile
	rates         map[currency.Code]model.ExchangeRate
	counters      map[string]int64
	audit         []model.AuditLog
}

func newState() state {
	return state{
		products:      map[string]model.Product{},
		tabs:          map[uuid.UUID]model.OrderTab{},
		tabItems:      map[uuid.UUID]model.OrderTabItem{},
		orders:        map[uuid.UUID]model.Order{},
		orderItems:    map[uuid.UUID][]model.OrderItem{},
		payments:      map[uuid.UUID]model.Payment{},
		sessions:      map[uuid.UUID]model.PosSession{},
		carts:         map[uuid.UUID]model.Cart{},
		cartItems:     map[uuid.UUID]model.CartItem{},
		subscriptions: map[uuid.UUID]model.Subscription{},
		allowances:    map[uuid.UUID]model.FreeAllowance{},
		vatProfiles:   map[uuid.UUID]model.VatProfile{},
		rates:         map[currency.Code]model.ExchangeRate{},
		counters:      map[string]int64{},
	}
}

// clone copies every collection. Stored values are replaced, never mutated in
// place, so copying the containers is enough.
func (s state) clone() state {
	return state{
		products:      maps.Clone(s.products),
		tabs:          maps.Clone(s.tabs),
		tabItems:      maps.Clone(s.tabItems),
		printEntries:  slices.Clone(s.printEntries),
		orders:        maps.Clone(s.orders),
		orderItems:    maps.Clone(s.orderItems),
		payments:      maps.Clone(s.payments),
		notes:         slices.Clone(s.notes),
		sessions:      maps.Clone(s.sessions),
		carts:         maps.Clone(s.carts),
		cartItems:     maps.Clone(s.cartItems),
		subscriptions: maps.Clone(s.subscriptions),
		allowances:    maps.Clone(s.allowances),
		vatProfiles:   maps.Clone(s.vatProfiles),
		rates:         maps.Clone(s.rates),
		counters:      maps.Clone(s.counters),
		audit:         slices.Clone(s.audit),
	}
}

type Store struct {
	mu   sync.Mutex
	data state
	last time.Time
}

func NewStore() *Store {
	return &Store{data: newState()}
}

// RunInTx implements repository.TransactionManager.
func (s *Store) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.data = saved
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txMarker{}).(bool)
	return v
}

// lock takes the store lock unless the caller already holds it through RunInTx.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func newID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

// stamp returns a strictly increasing timestamp so creation order is stable.
// Callers hold the lock.
func (s *Store) stamp() time.Time {
	now := time.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}
