package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement/internal/model"
)

type CounterRepository interface {
	// Next increments the named counter and returns the new value.
	Next(ctx context.Context, name string) (int64, error)
}

type counterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepository{db: db}
}

func (r *counterRepository) Next(ctx context.Context, name string) (int64, error) {
	counter := model.Counter{Name: name, Value: 1}
	err := GetDB(ctx, r.db).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"value": gorm.Expr("counters.value + 1")}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "value"}}},
	).Create(&counter).Error
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}
