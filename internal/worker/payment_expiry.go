package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// PaymentExpirer is the part of the payment service the sweeper drives.
type PaymentExpirer interface {
	ExpirePendingPayments(ctx context.Context) (int, error)
}

// PaymentExpiryWorker cancels pending payments whose deadline passed, so
// abandoned checkouts release their orders even when nobody reads them.
type PaymentExpiryWorker struct {
	payments PaymentExpirer
	interval time.Duration
	log      logrus.FieldLogger
}

func NewPaymentExpiryWorker(payments PaymentExpirer, interval time.Duration, log logrus.FieldLogger) *PaymentExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PaymentExpiryWorker{payments: payments, interval: interval, log: log}
}

// Start blocks until ctx is canceled.
func (w *PaymentExpiryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("interval", w.interval.String()).Info("Payment expiry worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Payment expiry worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. A panic is logged and the next tick retries.
func (w *PaymentExpiryWorker) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("Payment expiry sweep panicked")
		}
	}()

	expired, err := w.payments.ExpirePendingPayments(ctx)
	if err != nil {
		w.log.WithError(err).Error("Payment expiry sweep failed")
		return
	}
	if expired > 0 {
		w.log.WithField("expired", expired).Info("Expired pending payments")
	}
}
