package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement/internal/model"
)

type VatProfileRepository interface {
	Create(ctx context.Context, profile *model.VatProfile) error
	List(ctx context.Context) ([]model.VatProfile, error)
}

type vatProfileRepository struct {
	db *gorm.DB
}

func NewVatProfileRepository(db *gorm.DB) VatProfileRepository {
	return &vatProfileRepository{db: db}
}

func (r *vatProfileRepository) Create(ctx context.Context, profile *model.VatProfile) error {
	return GetDB(ctx, r.db).Create(profile).Error
}

func (r *vatProfileRepository) List(ctx context.Context) ([]model.VatProfile, error) {
	var profiles []model.VatProfile
	if err := GetDB(ctx, r.db).Preload("Rates").Order("name asc").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

type ExchangeRateRepository interface {
	List(ctx context.Context) ([]model.ExchangeRate, error)
	Upsert(ctx context.Context, rate *model.ExchangeRate) error
}

type exchangeRateRepository struct {
	db *gorm.DB
}

func NewExchangeRateRepository(db *gorm.DB) ExchangeRateRepository {
	return &exchangeRateRepository{db: db}
}

func (r *exchangeRateRepository) List(ctx context.Context) ([]model.ExchangeRate, error) {
	var rates []model.ExchangeRate
	if err := GetDB(ctx, r.db).Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *exchangeRateRepository) Upsert(ctx context.Context, rate *model.ExchangeRate) error {
	rate.UpdatedAt = time.Now()
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"per_bitcoin", "updated_at"}),
	}).Create(rate).Error
}
