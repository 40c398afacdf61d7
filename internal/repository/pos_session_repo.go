package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement/internal/model"
)

type PosSessionRepository interface {
	Create(ctx context.Context, session *model.PosSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PosSession, error)
	FindActive(ctx context.Context) (*model.PosSession, error)
	FindActiveForUpdate(ctx context.Context) (*model.PosSession, error)
	List(ctx context.Context, page, limit int) ([]model.PosSession, int64, error)
	// Close writes the closing figures only if the session is still active.
	Close(ctx context.Context, session *model.PosSession) (bool, error)
	// SaveXTickets replaces the X-ticket history only if the session is still active.
	SaveXTickets(ctx context.Context, id uuid.UUID, tickets []model.XTicket) (bool, error)
}

type posSessionRepository struct {
	db *gorm.DB
}

func NewPosSessionRepository(db *gorm.DB) PosSessionRepository {
	return &posSessionRepository{db: db}
}

func (r *posSessionRepository) Create(ctx context.Context, session *model.PosSession) error {
	return GetDB(ctx, r.db).Create(session).Error
}

func (r *posSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PosSession, error) {
	var session model.PosSession
	if err := GetDB(ctx, r.db).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *posSessionRepository) FindActive(ctx context.Context) (*model.PosSession, error) {
	var session model.PosSession
	if err := GetDB(ctx, r.db).Where("status = ?", model.PosSessionActive).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *posSessionRepository) FindActiveForUpdate(ctx context.Context) (*model.PosSession, error) {
	var session model.PosSession
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ?", model.PosSessionActive).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *posSessionRepository) List(ctx context.Context, page, limit int) ([]model.PosSession, int64, error) {
	var sessions []model.PosSession
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.PosSession{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("opened_at desc").Offset(offset).Limit(limit).Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *posSessionRepository) Close(ctx context.Context, session *model.PosSession) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.PosSession{}).
		Where("id = ? AND status = ?", session.ID, model.PosSessionActive).
		Select("status", "closed_at", "closed_by", "cash_closing", "cash_closing_theoretical",
			"cash_delta", "cash_delta_justification", "total_cashback", "daily_incomes", "daily_outcomes", "updated_at").
		Updates(&model.PosSession{
			Status:                 model.PosSessionClosed,
			ClosedAt:               session.ClosedAt,
			ClosedBy:               session.ClosedBy,
			CashClosing:            session.CashClosing,
			CashClosingTheoretical: session.CashClosingTheoretical,
			CashDelta:              session.CashDelta,
			CashDeltaJustification: session.CashDeltaJustification,
			TotalCashback:          session.TotalCashback,
			DailyIncomes:           session.DailyIncomes,
			DailyOutcomes:          session.DailyOutcomes,
			UpdatedAt:              time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *posSessionRepository) SaveXTickets(ctx context.Context, id uuid.UUID, tickets []model.XTicket) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.PosSession{}).
		Where("id = ? AND status = ?", id, model.PosSessionActive).
		Select("x_tickets", "updated_at").
		Updates(&model.PosSession{XTickets: tickets, UpdatedAt: time.Now()})
	return res.RowsAffected == 1, res.Error
}
