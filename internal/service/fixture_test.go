package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/internal/repository/memory"
	"settlement/pkg/apperror"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []live.Topic
}

func (p *recordingPublisher) Publish(topic live.Topic, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func (p *recordingPublisher) saw(topic live.Topic) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		if t == topic {
			return true
		}
	}
	return false
}

type downProcessor struct{}

func (downProcessor) CreateCheckout(context.Context, CheckoutRequest) (*Checkout, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type fixture struct {
	repos     *memory.Repositories
	publisher *recordingPublisher
	cfg       config.Settlement

	tabs     OrderTabService
	orders   OrderService
	payments PaymentService
	sessions PosSessionService
	carts    CartService
	rates    RateService
}

type fixtureOption func(*config.Settlement, *PaymentProcessor)

func withSettlement(fn func(*config.Settlement)) fixtureOption {
	return func(cfg *config.Settlement, _ *PaymentProcessor) { fn(cfg) }
}

func withProcessor(p PaymentProcessor) fixtureOption {
	return func(_ *config.Settlement, processor *PaymentProcessor) { *processor = p }
}

var (
	guest = model.Identity{SessionID: "guest-1"}
	staff = model.Identity{SessionID: "till-1", UserRoleID: "cashier"}
)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := config.DefaultSettlement()
	var processor PaymentProcessor = LocalProcessor{Name: "terminal"}
	for _, opt := range opts {
		opt(&cfg, &processor)
	}

	log, _ := test.NewNullLogger()
	repos := memory.New()
	stores := memoryStores(repos)
	publisher := &recordingPublisher{}
	rates := NewRateService(repos.Rates, repos.VatProfiles, log)
	notifier := LogNotifier{Log: log}

	f := &fixture{
		repos:     repos,
		publisher: publisher,
		cfg:       cfg,
		tabs:      NewOrderTabService(stores, rates, publisher, cfg, log),
		orders:    NewOrderService(stores, rates, processor, notifier, publisher, cfg, log),
		payments:  NewPaymentService(stores, rates, processor, notifier, publisher, cfg, log),
		sessions:  NewPosSessionService(stores, rates, cfg, log),
		carts:     NewCartService(stores, publisher, log),
		rates:     rates,
	}
	f.seed(t)
	return f
}

func memoryStores(repos *memory.Repositories) Stores {
	return Stores{
		Tx:            repos.Store,
		Products:      repos.Products,
		Tabs:          repos.Tabs,
		Orders:        repos.Orders,
		Payments:      repos.Payments,
		Counters:      repos.Counters,
		Carts:         repos.Carts,
		Subscriptions: repos.Subscriptions,
		Sessions:      repos.Sessions,
		VatProfiles:   repos.VatProfiles,
		Rates:         repos.Rates,
		Audit:         repos.Audit,
	}
}

func (f *fixture) stores() Stores {
	return memoryStores(f.repos)
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	exempt := &model.VatProfile{
		Name:  "exempt",
		Rates: []model.VatProfileRate{{Country: "CH", Rate: decimal.Zero}},
	}
	require.NoError(t, f.repos.VatProfiles.Create(ctx, exempt))

	products := []model.Product{
		{ID: "coffee", Name: "Coffee", Price: dec("4.50"), PrintTag: "bar"},
		{ID: "burger", Name: "Burger", Price: dec("20.00"), PrintTag: "kitchen", MaxQuantityPerOrder: 3},
		{ID: "dinner", Name: "Dinner", Price: dec("50.00"), PrintTag: "kitchen"},
		{ID: "menu", Name: "Menu", Price: dec("30.00"), PrintTag: "kitchen"},
		{ID: "donation", Name: "Donation", Price: dec("10.00"), PayWhatYouWant: true},
		{ID: "tshirt", Name: "T-shirt", Price: dec("25.00"), Shipping: true},
	}
	for i := range products {
		p := products[i]
		p.Currency = currency.CHF
		p.VatProfileID = &exempt.ID
		require.NoError(t, f.repos.Products.Create(ctx, &p))
	}
	beer := &model.Product{ID: "beer", Name: "Beer", Price: dec("10.00"), Currency: currency.CHF, PrintTag: "bar"}
	require.NoError(t, f.repos.Products.Create(ctx, beer))
}

// addToTab adds quantity units of a product to the tab one by one, the way
// terminals do.
func (f *fixture) addToTab(t *testing.T, slug, productID string, quantity int) *model.OrderTabItem {
	t.Helper()
	var item *model.OrderTabItem
	for i := 0; i < quantity; i++ {
		var err error
		item, err = f.tabs.AddItem(context.Background(), slug, AddTabItemRequest{ProductID: productID})
		require.NoError(t, err)
	}
	return item
}

func (f *fixture) tabOrder(t *testing.T, slug, productID string, quantity int, req CreateOrderRequest) *model.Order {
	t.Helper()
	f.addToTab(t, slug, productID, quantity)
	order, err := f.orders.CreateOrderFromTab(context.Background(), slug, req, staff)
	require.NoError(t, err)
	return order
}

func (f *fixture) payment(t *testing.T, orderID, paymentID uuid.UUID) model.Payment {
	t.Helper()
	p, err := f.repos.Payments.FindByID(context.Background(), orderID, paymentID)
	require.NoError(t, err)
	return *p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func requireKind(t *testing.T, err error, kind apperror.Kind) {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperror.IsKind(err, kind), "expected %s, got %v", kind, err)
}
