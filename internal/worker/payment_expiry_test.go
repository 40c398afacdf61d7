package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (c *countingExpirer) ExpirePendingPayments(context.Context) (int, error) {
	c.calls.Add(1)
	if c.panic {
		panic("boom")
	}
	return 2, c.err
}

func TestRunOnceLogsExpiredCount(t *testing.T) {
	log, hook := test.NewNullLogger()
	w := NewPaymentExpiryWorker(&countingExpirer{}, time.Minute, log)

	w.RunOnce(context.Background())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Expired pending payments", entry.Message)
	assert.Equal(t, 2, entry.Data["expired"])
}

func TestRunOnceSurvivesFailures(t *testing.T) {
	log, hook := test.NewNullLogger()

	NewPaymentExpiryWorker(&countingExpirer{err: errors.New("db down")}, time.Minute, log).RunOnce(context.Background())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	hook.Reset()
	NewPaymentExpiryWorker(&countingExpirer{panic: true}, time.Minute, log).RunOnce(context.Background())
	assert.Equal(t, "Payment expiry sweep panicked", hook.LastEntry().Message)
}

func TestStartSweepsUntilCanceled(t *testing.T) {
	log, _ := test.NewNullLogger()
	expirer := &countingExpirer{}
	w := NewPaymentExpiryWorker(expirer, 5*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
