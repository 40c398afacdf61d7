package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/internal/ticket"
	"settlement/pkg/apperror"
)

type OpenSessionRequest struct {
	CashOpening decimal.Decimal `json:"cash_opening"`
	Currency    string          `json:"currency"`
}

type CloseSessionRequest struct {
	CashClosing   decimal.Decimal     `json:"cash_closing"`
	Outcomes      []model.OutcomeLine `json:"outcomes"`
	Justification string              `json:"justification"`
}

type PosSessionService interface {
	OpenSession(ctx context.Context, req OpenSessionRequest, identity model.Identity) (*model.PosSession, error)
	// CalculateDailyIncomes aggregates payments settled during the session,
	// converted into the session currency.
	CalculateDailyIncomes(ctx context.Context, session *model.PosSession) ([]model.IncomeLine, error)
	CalculateTotalCashback(ctx context.Context, session *model.PosSession) (decimal.Decimal, error)
	CloseSession(ctx context.Context, req CloseSessionRequest, identity model.Identity) (*model.PosSession, error)
	GenerateXTicket(ctx context.Context, identity model.Identity) (string, error)
	GenerateZTicketText(ctx context.Context, sessionID uuid.UUID) (string, error)
	GetActiveSession(ctx context.Context) (*model.PosSession, error)
	ListSessions(ctx context.Context, page, limit int) ([]model.PosSession, int64, error)
}

type posSessionService struct {
	stores Stores
	rates  RateService
	cfg    config.Settlement
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewPosSessionService(stores Stores, rates RateService, cfg config.Settlement, log logrus.FieldLogger) PosSessionService {
	return &posSessionService{stores: stores, rates: rates, cfg: cfg, log: log, now: time.Now}
}

func (s *posSessionService) OpenSession(ctx context.Context, req OpenSessionRequest, identity model.Identity) (*model.PosSession, error) {
	if req.CashOpening.IsNegative() {
		return nil, apperror.Validation("invalid cash opening", apperror.FieldError{Field: "cash_opening", Message: "must not be negative"})
	}
	code := s.cfg.MainCurrency
	if req.Currency != "" {
		c, err := currency.Parse(req.Currency)
		if err != nil {
			return nil, apperror.Validation("invalid currency", apperror.FieldError{Field: "currency", Message: err.Error()})
		}
		code = c
	}

	session := &model.PosSession{
		Status:      model.PosSessionActive,
		Currency:    code,
		OpenedAt:    s.now(),
		OpenedBy:    identity.Actor(),
		CashOpening: currency.Round(req.CashOpening, code),
	}
	err := s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		active, err := s.stores.Sessions.FindActive(txCtx)
		switch {
		case err == nil:
			return apperror.Conflict("a POS session is already active since %s", active.OpenedAt.Format(time.RFC3339))
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if err := s.stores.Sessions.Create(txCtx, session); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Conflict("a POS session is already active")
			}
			return err
		}
		return writeAudit(txCtx, s.stores.Audit, identity, model.ActionOpenPosSession, session.ID.String(), "", map[string]interface{}{
			"cash_opening": session.Opening().String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"session": session.ID, "opening": session.Opening().String()}).Info("POS session opened")
	return session, nil
}

// sessionAmount expresses a payment amount in the session currency, preferring
// the frozen snapshot over a conversion at today's rates.
func sessionAmount(snap currency.Money, storage currency.Money, target currency.Code, rates currency.RateTable) decimal.Decimal {
	switch target {
	case snap.Currency:
		return snap.Amount
	case storage.Currency:
		return storage.Amount
	}
	return currency.Convert(snap.Amount, snap.Currency, target, rates)
}

func (s *posSessionService) window(session *model.PosSession, now time.Time) (time.Time, time.Time) {
	if session.ClosedAt != nil {
		return session.OpenedAt, *session.ClosedAt
	}
	return session.OpenedAt, now
}

func (s *posSessionService) CalculateDailyIncomes(ctx context.Context, session *model.PosSession) ([]model.IncomeLine, error) {
	from, to := s.window(session, s.now())
	return s.incomes(ctx, session, from, to)
}

func (s *posSessionService) incomes(ctx context.Context, session *model.PosSession, from, to time.Time) ([]model.IncomeLine, error) {
	payments, err := s.stores.Payments.ListPaidBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	rates := s.rates.Table(ctx)

	byKey := map[string]*model.IncomeLine{}
	for _, p := range payments {
		key := string(p.Method) + "|" + p.PosSubtype
		line, ok := byKey[key]
		if !ok {
			line = &model.IncomeLine{Method: p.Method, Subtype: p.PosSubtype, Amount: decimal.Zero}
			byKey[key] = line
		}
		line.Amount = line.Amount.Add(sessionAmount(p.Amount.Main, p.Amount.Storage, session.Currency, rates))
		line.Count++
	}

	out := make([]model.IncomeLine, 0, len(byKey))
	for _, line := range byKey {
		line.Amount = currency.Round(line.Amount, session.Currency)
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].Subtype < out[j].Subtype
	})
	return out, nil
}

func (s *posSessionService) CalculateTotalCashback(ctx context.Context, session *model.PosSession) (decimal.Decimal, error) {
	from, to := s.window(session, s.now())
	return s.cashback(ctx, session, from, to)
}

func (s *posSessionService) cashback(ctx context.Context, session *model.PosSession, from, to time.Time) (decimal.Decimal, error) {
	payments, err := s.stores.Payments.ListPaidBetween(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	rates := s.rates.Table(ctx)

	total := decimal.Zero
	for _, p := range payments {
		if p.Cashback == nil || p.Cashback.IsZero() {
			continue
		}
		total = total.Add(currency.Convert(*p.Cashback, p.Amount.Main.Currency, session.Currency, rates))
	}
	return currency.Round(total, session.Currency), nil
}

func cashIncome(incomes []model.IncomeLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range incomes {
		if l.Method == model.PaymentMethodCash {
			total = total.Add(l.Amount)
		}
	}
	return total
}

func (s *posSessionService) CloseSession(ctx context.Context, req CloseSessionRequest, identity model.Identity) (*model.PosSession, error) {
	var fields []apperror.FieldError
	if req.CashClosing.IsNegative() {
		fields = append(fields, apperror.FieldError{Field: "cash_closing", Message: "must not be negative"})
	}
	for _, o := range req.Outcomes {
		if strings.TrimSpace(o.Category) == "" || o.Amount.IsNegative() {
			fields = append(fields, apperror.FieldError{Field: "outcomes", Message: "each outcome needs a category and a non-negative amount"})
			break
		}
	}
	if len(fields) > 0 {
		return nil, apperror.Validation("invalid closing figures", fields...)
	}

	var closed *model.PosSession
	err := s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		session, err := s.stores.Sessions.FindActiveForUpdate(txCtx)
		if err != nil {
			return notFound(err, "active POS session")
		}

		now := s.now()
		incomes, err := s.incomes(txCtx, session, session.OpenedAt, now)
		if err != nil {
			return err
		}
		cashback, err := s.cashback(txCtx, session, session.OpenedAt, now)
		if err != nil {
			return err
		}

		outcomes := decimal.Zero
		for _, o := range req.Outcomes {
			outcomes = outcomes.Add(o.Amount)
		}
		theoretical := currency.Round(session.CashOpening.Add(cashIncome(incomes)).Sub(outcomes).Sub(cashback), session.Currency)
		closing := currency.Round(req.CashClosing, session.Currency)
		delta := closing.Sub(theoretical)

		justification := strings.TrimSpace(req.Justification)
		if s.cfg.CashDeltaJustificationMandatory && delta.Abs().GreaterThan(s.cfg.CashDeltaTolerance) && justification == "" {
			return apperror.Validation("cash delta requires a justification", apperror.FieldError{
				Field:   "justification",
				Message: "required for a cash delta of " + currency.Format(delta, session.Currency),
			})
		}

		session.Status = model.PosSessionClosed
		session.ClosedAt = &now
		session.ClosedBy = identity.Actor()
		session.CashClosing = &closing
		session.CashClosingTheoretical = &theoretical
		session.CashDelta = &delta
		session.CashDeltaJustification = justification
		session.TotalCashback = &cashback
		session.DailyIncomes = incomes
		session.DailyOutcomes = req.Outcomes

		ok, err := s.stores.Sessions.Close(txCtx, session)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("POS session was closed concurrently")
		}
		closed = session
		return writeAudit(txCtx, s.stores.Audit, identity, model.ActionClosePosSession, session.ID.String(), "", map[string]interface{}{
			"cash_closing": closing,
			"theoretical":  theoretical,
			"delta":        delta,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"session": closed.ID, "delta": closed.CashDelta.String()}).Info("POS session closed")
	return closed, nil
}

func (s *posSessionService) GenerateXTicket(ctx context.Context, identity model.Identity) (string, error) {
	var report ticket.SessionReport
	err := s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		session, err := s.stores.Sessions.FindActiveForUpdate(txCtx)
		if err != nil {
			return notFound(err, "active POS session")
		}
		now := s.now()
		incomes, err := s.incomes(txCtx, session, session.OpenedAt, now)
		if err != nil {
			return err
		}
		cashback, err := s.cashback(txCtx, session, session.OpenedAt, now)
		if err != nil {
			return err
		}

		x := model.XTicket{GeneratedAt: now, GeneratedBy: identity.Actor(), Incomes: incomes, Cashback: cashback}
		ok, err := s.stores.Sessions.SaveXTickets(txCtx, session.ID, append(slices.Clone(session.XTickets), x))
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("POS session was closed concurrently")
		}

		report = ticket.SessionReport{
			SessionID:   session.ID.String(),
			Currency:    session.Currency,
			OpenedAt:    session.OpenedAt,
			OpenedBy:    session.OpenedBy,
			CashOpening: session.CashOpening,
			Incomes:     incomes,
			Cashback:    cashback,
			GeneratedAt: now,
			GeneratedBy: x.GeneratedBy,
		}
		return writeAudit(txCtx, s.stores.Audit, identity, model.ActionGenerateXTicket, session.ID.String(), "", map[string]interface{}{
			"number": len(session.XTickets) + 1,
		})
	})
	if err != nil {
		return "", err
	}
	return ticket.RenderX(report), nil
}

// GenerateZTicketText renders the closing report from the figures stored at close.
func (s *posSessionService) GenerateZTicketText(ctx context.Context, sessionID uuid.UUID) (string, error) {
	session, err := s.stores.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return "", notFound(err, "POS session")
	}
	if session.Active() {
		return "", apperror.Conflict("POS session is still active, generate an X ticket instead")
	}

	report := ticket.SessionReport{
		SessionID:     session.ID.String(),
		Currency:      session.Currency,
		OpenedAt:      session.OpenedAt,
		OpenedBy:      session.OpenedBy,
		ClosedAt:      session.ClosedAt,
		ClosedBy:      session.ClosedBy,
		CashOpening:   session.CashOpening,
		Incomes:       session.DailyIncomes,
		Outcomes:      session.DailyOutcomes,
		CashClosing:   session.CashClosing,
		Theoretical:   session.CashClosingTheoretical,
		Delta:         session.CashDelta,
		Justification: session.CashDeltaJustification,
		GeneratedAt:   s.now(),
		GeneratedBy:   session.ClosedBy,
	}
	if session.TotalCashback != nil {
		report.Cashback = *session.TotalCashback
	}
	return ticket.RenderZ(report), nil
}

func (s *posSessionService) GetActiveSession(ctx context.Context) (*model.PosSession, error) {
	session, err := s.stores.Sessions.FindActive(ctx)
	if err != nil {
		return nil, notFound(err, "active POS session")
	}
	return session, nil
}

func (s *posSessionService) ListSessions(ctx context.Context, page, limit int) ([]model.PosSession, int64, error) {
	return s.stores.Sessions.List(ctx, page, limit)
}
