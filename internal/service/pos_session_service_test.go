package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/config"
	"settlement/internal/model"
	"settlement/pkg/apperror"
)

func openSession(t *testing.T, f *fixture, opening string) *model.PosSession {
	t.Helper()
	session, err := f.sessions.OpenSession(context.Background(), OpenSessionRequest{CashOpening: dec(opening)}, staff)
	require.NoError(t, err)
	return session
}

// paidOrder creates a tab order for one product and settles its first payment.
func paidOrder(t *testing.T, f *fixture, slug, productID, method string, cashback *decimal.Decimal) *model.Order {
	t.Helper()
	order := f.tabOrder(t, slug, productID, 1, CreateOrderRequest{Method: method})
	paid, err := f.payments.OnPaymentSettled(context.Background(), order.ID, order.Payments[0].ID, SettlePaymentRequest{Cashback: cashback}, staff)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPaid, paid.Status)
	return paid
}

func TestOnlyOneActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openSession(t, f, "100")

	_, err := f.sessions.OpenSession(ctx, OpenSessionRequest{CashOpening: dec("50")}, staff)
	requireKind(t, err, apperror.KindConflict)

	active, err := f.sessions.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(active.CashOpening))
}

func TestOpenSessionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.OpenSession(ctx, OpenSessionRequest{CashOpening: dec("-1")}, staff)
	requireKind(t, err, apperror.KindValidation)

	_, err = f.sessions.OpenSession(ctx, OpenSessionRequest{CashOpening: dec("1"), Currency: "XYZ"}, staff)
	requireKind(t, err, apperror.KindValidation)
}

func TestCloseSessionBalanced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := openSession(t, f, "200")
	paidOrder(t, f, "table-1", "dinner", "cash", nil)

	incomes, err := f.sessions.CalculateDailyIncomes(ctx, session)
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	assert.Equal(t, model.PaymentMethodCash, incomes[0].Method)
	assert.True(t, dec("50").Equal(incomes[0].Amount))
	assert.Equal(t, 1, incomes[0].Count)

	closed, err := f.sessions.CloseSession(ctx, CloseSessionRequest{CashClosing: dec("250")}, staff)
	require.NoError(t, err)
	assert.Equal(t, model.PosSessionClosed, closed.Status)
	assert.True(t, dec("250").Equal(*closed.CashClosingTheoretical), closed.CashClosingTheoretical.String())
	assert.True(t, closed.CashDelta.IsZero(), closed.CashDelta.String())

	_, err = f.sessions.GetActiveSession(ctx)
	requireKind(t, err, apperror.KindNotFound)
}

func TestCloseSessionDeltaNeedsJustification(t *testing.T) {
	f := newFixture(t, withSettlement(func(cfg *config.Settlement) {
		cfg.CashDeltaJustificationMandatory = true
	}))
	ctx := context.Background()
	openSession(t, f, "200")
	paidOrder(t, f, "table-1", "dinner", "cash", nil)

	_, err := f.sessions.CloseSession(ctx, CloseSessionRequest{CashClosing: dec("245")}, staff)
	requireKind(t, err, apperror.KindValidation)
	assert.Equal(t, "justification", apperror.GetAppError(err).Errors[0].Field)

	_, err = f.sessions.GetActiveSession(ctx)
	require.NoError(t, err, "a rejected close leaves the session open")

	closed, err := f.sessions.CloseSession(ctx, CloseSessionRequest{CashClosing: dec("245"), Justification: "tip jar"}, staff)
	require.NoError(t, err)
	assert.True(t, dec("-5").Equal(*closed.CashDelta), closed.CashDelta.String())
	assert.Equal(t, "tip jar", closed.CashDeltaJustification)
}

func TestCloseSessionDeltaWithinTolerance(t *testing.T) {
	f := newFixture(t, withSettlement(func(cfg *config.Settlement) {
		cfg.CashDeltaJustificationMandatory = true
		cfg.CashDeltaTolerance = dec("1")
	}))
	openSession(t, f, "100")

	closed, err := f.sessions.CloseSession(context.Background(), CloseSessionRequest{CashClosing: dec("100.50")}, staff)
	require.NoError(t, err)
	assert.True(t, dec("0.5").Equal(*closed.CashDelta))
}

func TestCloseSessionCountsCashbackAndOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := openSession(t, f, "200")
	paidOrder(t, f, "table-1", "dinner", "cash", decPtr("10"))
	paidOrder(t, f, "table-2", "menu", "card", nil)

	cashback, err := f.sessions.CalculateTotalCashback(ctx, session)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(cashback))

	closed, err := f.sessions.CloseSession(ctx, CloseSessionRequest{
		CashClosing: dec("220"),
		Outcomes:    []model.OutcomeLine{{Category: "supplies", Amount: dec("20")}},
	}, staff)
	require.NoError(t, err)
	// 200 opening + 50 cash - 20 outcomes - 10 cashback; card income stays out of the drawer.
	assert.True(t, dec("220").Equal(*closed.CashClosingTheoretical), closed.CashClosingTheoretical.String())
	assert.True(t, closed.CashDelta.IsZero())
	require.Len(t, closed.DailyIncomes, 2)
	assert.Equal(t, model.PaymentMethodCard, closed.DailyIncomes[0].Method)
	assert.Equal(t, model.PaymentMethodCash, closed.DailyIncomes[1].Method)
}

func TestCloseSessionRejectsBadOutcomes(t *testing.T) {
	f := newFixture(t)
	openSession(t, f, "100")
	_, err := f.sessions.CloseSession(context.Background(), CloseSessionRequest{
		CashClosing: dec("100"),
		Outcomes:    []model.OutcomeLine{{Amount: dec("5")}},
	}, staff)
	requireKind(t, err, apperror.KindValidation)
}

func TestCloseWithoutActiveSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.sessions.CloseSession(context.Background(), CloseSessionRequest{CashClosing: dec("0")}, staff)
	requireKind(t, err, apperror.KindNotFound)
}

func TestXAndZTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := openSession(t, f, "200")
	paidOrder(t, f, "table-1", "dinner", "cash", nil)

	x, err := f.sessions.GenerateXTicket(ctx, staff)
	require.NoError(t, err)
	assert.Contains(t, x, "50.00")

	_, err = f.sessions.GenerateZTicketText(ctx, session.ID)
	requireKind(t, err, apperror.KindConflict)

	_, err = f.sessions.CloseSession(ctx, CloseSessionRequest{CashClosing: dec("250")}, staff)
	require.NoError(t, err)

	stored, err := f.repos.Sessions.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, stored.XTickets, 1)

	z, err := f.sessions.GenerateZTicketText(ctx, session.ID)
	require.NoError(t, err)
	assert.Contains(t, z, "250.00")

	sessions, total, err := f.sessions.ListSessions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, sessions, 1)
}
