package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/internal/repository"
	"settlement/pkg/apperror"
)

// ProductCatalog is the read side of the product store the settlement core consumes.
type ProductCatalog interface {
	FindByID(ctx context.Context, id string) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Product, error)
}

// Stores groups the repositories shared by the settlement services. Every
// field must be backed by the same database (or memory store) as Tx.
type Stores struct {
	Tx            repository.TransactionManager
	Products      ProductCatalog
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

// CheckoutRequest asks a processor to open a checkout for one payment.
type CheckoutRequest struct {
	PaymentID   uuid.UUID
	OrderID     uuid.UUID
	OrderNumber int64
	Method      model.PaymentMethod
	Amount      currency.Money
	ExpiresAt   *time.Time
}

type Checkout struct {
	ID        string
	Processor string
	// ExpiresAt overrides the payment deadline when the processor imposes its own.
	ExpiresAt *time.Time
}

// PaymentProcessor opens checkouts (card terminal, lightning invoice, ...).
// Settlement comes back through PaymentService.HandleProcessorUpdate.
type PaymentProcessor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
}

// LocalProcessor issues opaque checkout references for terminals that report
// back through the webhook. It never talks to a remote API.
type LocalProcessor struct {
	Name string
}

func (p LocalProcessor) CreateCheckout(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	name := p.Name
	if name == "" {
		name = "local"
	}
	return &Checkout{ID: name + "_" + uuid.NewString(), Processor: name, ExpiresAt: req.ExpiresAt}, nil
}

type Notification struct {
	Event    string
	OrderID  uuid.UUID
	Number   int64
	Status   model.OrderStatus
	Identity model.Identity
}

// Notifier delivers customer-facing messages (email, Nostr, ...). Delivery is
// best effort and never blocks settlement.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.Log.WithFields(logrus.Fields{
		"event":  msg.Event,
		"order":  msg.Number,
		"status": msg.Status,
		"actor":  msg.Identity.Actor(),
	}).Info("Order notification")
	return nil
}

// notFound maps a missing row onto a NotFound error naming the resource.
func notFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(resource)
	}
	return err
}

// writeAudit records an action within the caller's transaction.
func writeAudit(ctx context.Context, audit repository.AuditRepository, identity model.Identity, action, entityID, entityName string, details interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return audit.Log(ctx, &model.AuditLog{
		UserID:     identity.UserID,
		Actor:      identity.Actor(),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(raw),
	})
}

// systemIdentity signs changes made by processor callbacks and background jobs.
var systemIdentity = model.Identity{SessionID: "system"}
