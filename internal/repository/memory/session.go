package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"settlement/internal/model"
)

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(ctx context.Context, session *model.PosSession) error {
	defer r.s.lock(ctx)()
	if session.Status == model.PosSessionActive {
		for _, existing := range r.s.data.sessions {
			if existing.Active() {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	session.ID = newID(session.ID)
	now := r.s.stamp()
	session.CreatedAt, session.UpdatedAt = now, now
	r.s.data.sessions[session.ID] = *session
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.PosSession, error) {
	defer r.s.lock(ctx)()
	session, ok := r.s.data.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &session, nil
}

func (r *sessionRepo) FindActive(ctx context.Context) (*model.PosSession, error) {
	defer r.s.lock(ctx)()
	for _, session := range r.s.data.sessions {
		if session.Active() {
			return &session, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *sessionRepo) FindActiveForUpdate(ctx context.Context) (*model.PosSession, error) {
	return r.FindActive(ctx)
}

func (r *sessionRepo) List(ctx context.Context, page, limit int) ([]model.PosSession, int64, error) {
	defer r.s.lock(ctx)()
	out := make([]model.PosSession, 0, len(r.s.data.sessions))
	for _, session := range r.s.data.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return paginate(out, page, limit), int64(len(out)), nil
}

func (r *sessionRepo) Close(ctx context.Context, session *model.PosSession) (bool, error) {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.sessions[session.ID]
	if !ok || !stored.Active() {
		return false, nil
	}
	stored.Status = model.PosSessionClosed
	stored.ClosedAt = session.ClosedAt
	stored.ClosedBy = session.ClosedBy
	stored.CashClosing = session.CashClosing
	stored.CashClosingTheoretical = session.CashClosingTheoretical
	stored.CashDelta = session.CashDelta
	stored.CashDeltaJustification = session.CashDeltaJustification
	stored.TotalCashback = session.TotalCashback
	stored.DailyIncomes = slices.Clone(session.DailyIncomes)
	stored.DailyOutcomes = slices.Clone(session.DailyOutcomes)
	stored.UpdatedAt = time.Now()
	r.s.data.sessions[session.ID] = stored
	return true, nil
}

func (r *sessionRepo) SaveXTickets(ctx context.Context, id uuid.UUID, tickets []model.XTicket) (bool, error) {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.sessions[id]
	if !ok || !stored.Active() {
		return false, nil
	}
	stored.XTickets = slices.Clone(tickets)
	stored.UpdatedAt = time.Now()
	r.s.data.sessions[id] = stored
	return true, nil
}

type vatProfileRepo struct{ s *Store }

func (r *vatProfileRepo) Create(ctx context.Context, profile *model.VatProfile) error {
	defer r.s.lock(ctx)()
	profile.ID = newID(profile.ID)
	for i := range profile.Rates {
		profile.Rates[i].ID = newID(profile.Rates[i].ID)
		profile.Rates[i].ProfileID = profile.ID
	}
	stored := *profile
	stored.Rates = slices.Clone(profile.Rates)
	r.s.data.vatProfiles[profile.ID] = stored
	return nil
}

func (r *vatProfileRepo) List(ctx context.Context) ([]model.VatProfile, error) {
	defer r.s.lock(ctx)()
	out := make([]model.VatProfile, 0, len(r.s.data.vatProfiles))
	for _, p := range r.s.data.vatProfiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type rateRepo struct{ s *Store }

func (r *rateRepo) List(ctx context.Context) ([]model.ExchangeRate, error) {
	defer r.s.lock(ctx)()
	out := make([]model.ExchangeRate, 0, len(r.s.data.rates))
	for _, rate := range r.s.data.rates {
		out = append(out, rate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (r *rateRepo) Upsert(ctx context.Context, rate *model.ExchangeRate) error {
	defer r.s.lock(ctx)()
	rate.UpdatedAt = time.Now()
	r.s.data.rates[rate.Currency] = *rate
	return nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	defer r.s.lock(ctx)()
	entry.ID = newID(entry.ID)
	entry.CreatedAt = r.s.stamp()
	r.s.data.audit = append(slices.Clone(r.s.data.audit), *entry)
	return nil
}

func (r *auditRepo) List(ctx context.Context, entityID string, page, limit int) ([]model.AuditLog, int64, error) {
	defer r.s.lock(ctx)()
	var out []model.AuditLog
	for i := len(r.s.data.audit) - 1; i >= 0; i-- {
		if e := r.s.data.audit[i]; entityID == "" || e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return paginate(out, page, limit), int64(len(out)), nil
}
