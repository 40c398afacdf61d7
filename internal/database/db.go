package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/internal/repository"
)

// NewConnection opens the postgres pool and migrates the settlement schema.
// Driver errors are translated so repositories can match gorm.ErrDuplicatedKey.
func NewConnection(cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&model.VatProfile{},
		&model.VatProfileRate{},
		&model.ExchangeRate{},
		&model.Counter{},
		&model.Product{},
		&model.OrderTab{},
		&model.OrderTabItem{},
		&model.TabPrintEntry{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderNote{},
		&model.Payment{},
		&model.Cart{},
		&model.CartItem{},
		&model.Subscription{},
		&model.FreeAllowance{},
		&model.PosSession{},
		&model.AuditLog{},
	)
	if err != nil {
		log.WithError(err).Warn("Failed to auto-migrate models")
	}

	return db, nil
}

// Ping checks the underlying connection pool.
func Ping(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// Seed inserts a demo catalog: a reduced-rate VAT profile and a few bar and
// kitchen products. Existing rows are left alone so it can run on every boot.
func Seed(ctx context.Context, products repository.ProductRepository, profiles repository.VatProfileRepository, log logrus.FieldLogger) error {
	existing, err := profiles.List(ctx)
	if err != nil {
		return fmt.Errorf("list VAT profiles: %w", err)
	}
	var reduced *model.VatProfile
	for i := range existing {
		if existing[i].Name == "reduced" {
			reduced = &existing[i]
		}
	}
	if reduced == nil {
		reduced = &model.VatProfile{
			Name: "reduced",
			Rates: []model.VatProfileRate{
				{Country: "CH", Rate: decimal.RequireFromString("2.6")},
				{Country: "FR", Rate: decimal.RequireFromString("5.5")},
				{Country: "DE", Rate: decimal.RequireFromString("7")},
			},
		}
		if err := profiles.Create(ctx, reduced); err != nil {
			return fmt.Errorf("create VAT profile: %w", err)
		}
	}

	catalog := []model.Product{
		{ID: "espresso", Name: "Espresso", Price: decimal.RequireFromString("3.50"), PrintTag: "bar", VatProfileID: &reduced.ID},
		{ID: "beer", Name: "Draft beer", Price: decimal.RequireFromString("6.00"), PrintTag: "bar"},
		{ID: "burger", Name: "Burger", Price: decimal.RequireFromString("18.00"), PrintTag: "kitchen", VatProfileID: &reduced.ID},
		{ID: "fries", Name: "Fries", Price: decimal.RequireFromString("6.50"), PrintTag: "kitchen", VatProfileID: &reduced.ID},
		{ID: "tip", Name: "Tip", Price: decimal.RequireFromString("1.00"), PayWhatYouWant: true},
	}
	created := 0
	for i := range catalog {
		p := catalog[i]
		p.Currency = currency.CHF
		if err := products.Create(ctx, &p); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return fmt.Errorf("create product %s: %w", p.ID, err)
		}
		created++
	}
	log.WithField("products", created).Info("Seeded catalog")
	return nil
}
