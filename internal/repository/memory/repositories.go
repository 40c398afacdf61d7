package memory

import "settlement/internal/repository"

// Repositories bundles every repository backed by one store.
type Repositories struct {
	Store         *Store
	Products      repository.ProductRepository
	Tabs          repository.OrderTabRepository
	Orders        repository.OrderRepository
	Payments      repository.PaymentRepository
	Counters      repository.CounterRepository
	Carts         repository.CartRepository
	Subscriptions repository.SubscriptionRepository
	Sessions      repository.PosSessionRepository
	VatProfiles   repository.VatProfileRepository
	Rates         repository.ExchangeRateRepository
	Audit         repository.AuditRepository
}

func New() *Repositories {
	s := NewStore()
	return &Repositories{
		Store:         s,
		Products:      &productRepo{s},
		Tabs:          &tabRepo{s},
		Orders:        &orderRepo{s},
		Payments:      &paymentRepo{s},
		Counters:      &counterRepo{s},
		Carts:         &cartRepo{s},
		Subscriptions: &subscriptionRepo{s},
		Sessions:      &sessionRepo{s},
		VatProfiles:   &vatProfileRepo{s},
		Rates:         &rateRepo{s},
		Audit:         &auditRepo{s},
	}
}
