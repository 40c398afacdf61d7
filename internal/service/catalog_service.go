package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"settlement/internal/currency"
	"settlement/internal/model"
	"settlement/internal/repository"
	"settlement/internal/vat"
	"settlement/pkg/apperror"
)

// DTOs
type CreateProductRequest struct {
	ID                  string          `json:"id" binding:"required,max=100"`
	Name                string          `json:"name" binding:"required,max=255"`
	Price               decimal.Decimal `json:"price"`
	Currency            string          `json:"currency" binding:"required"`
	VatProfileID        *uuid.UUID      `json:"vat_profile_id"`
	MaxQuantityPerOrder int             `json:"max_quantity_per_order" binding:"min=0"`
	PrintTag            string          `json:"print_tag" binding:"max=50"`
	PayWhatYouWant      bool            `json:"pay_what_you_want"`
	Shipping            bool            `json:"shipping"`
}

type VatRateRequest struct {
	Country string          `json:"country" binding:"required,len=2"`
	Rate    decimal.Decimal `json:"rate"`
}

type CreateVatProfileRequest struct {
	Name  string           `json:"name" binding:"required,max=100"`
	Rates []VatRateRequest `json:"rates" binding:"required,min=1,dive"`
}

// CatalogService maintains the products and VAT profiles pricing reads from.
type CatalogService interface {
	GetProducts(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error)
	CreateProduct(ctx context.Context, req CreateProductRequest, identity model.Identity) (*model.Product, error)
	GetVatProfiles(ctx context.Context) ([]model.VatProfile, error)
	CreateVatProfile(ctx context.Context, req CreateVatProfileRequest, identity model.Identity) (*model.VatProfile, error)
}

type catalogService struct {
	products  repository.ProductRepository
	profiles  repository.VatProfileRepository
	audit     repository.AuditRepository
	txManager repository.TransactionManager
}

func NewCatalogService(
	products repository.ProductRepository,
	profiles repository.VatProfileRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
) CatalogService {
	return &catalogService{
		products:  products,
		profiles:  profiles,
		audit:     audit,
		txManager: txManager,
	}
}

func (s *catalogService) GetProducts(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.products.List(ctx, page, limit, strings.TrimSpace(search))
}

func (s *catalogService) CreateProduct(ctx context.Context, req CreateProductRequest, identity model.Identity) (*model.Product, error) {
	code, err := currency.Parse(req.Currency)
	if err != nil {
		return nil, apperror.Validation(err.Error(), apperror.FieldError{Field: "currency", Message: "unsupported currency"})
	}
	if req.Price.IsNegative() {
		return nil, apperror.Validation("invalid price", apperror.FieldError{Field: "price", Message: "must not be negative"})
	}

	product := model.Product{
		ID:                  strings.TrimSpace(req.ID),
		Name:                req.Name,
		Price:               req.Price,
		Currency:            code,
		VatProfileID:        req.VatProfileID,
		MaxQuantityPerOrder: req.MaxQuantityPerOrder,
		PrintTag:            req.PrintTag,
		PayWhatYouWant:      req.PayWhatYouWant,
		Shipping:            req.Shipping,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.products.Create(txCtx, &product); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Conflict("product %s already exists", product.ID)
			}
			return fmt.Errorf("failed to create product: %w", err)
		}
		return writeAudit(txCtx, s.audit, identity, model.ActionCreateProduct, product.ID, product.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *catalogService) GetVatProfiles(ctx context.Context) ([]model.VatProfile, error) {
	return s.profiles.List(ctx)
}

func (s *catalogService) CreateVatProfile(ctx context.Context, req CreateVatProfileRequest, identity model.Identity) (*model.VatProfile, error) {
	profile := model.VatProfile{Name: req.Name}
	seen := map[vat.Country]bool{}
	for i, r := range req.Rates {
		country, err := vat.ParseCountry(r.Country)
		if err != nil {
			return nil, apperror.Validation(err.Error(), apperror.FieldError{Field: fmt.Sprintf("rates[%d].country", i), Message: "unknown country"})
		}
		if r.Rate.IsNegative() || r.Rate.GreaterThan(decimal.NewFromInt(100)) {
			return nil, apperror.Validation("invalid VAT rate", apperror.FieldError{Field: fmt.Sprintf("rates[%d].rate", i), Message: "must be between 0 and 100"})
		}
		if seen[country] {
			return nil, apperror.Validation("duplicate country", apperror.FieldError{Field: fmt.Sprintf("rates[%d].country", i), Message: "listed twice"})
		}
		seen[country] = true
		profile.Rates = append(profile.Rates, model.VatProfileRate{Country: country, Rate: r.Rate})
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.profiles.Create(txCtx, &profile); err != nil {
			return fmt.Errorf("failed to create VAT profile: %w", err)
		}
		return writeAudit(txCtx, s.audit, identity, model.ActionCreateVatProfile, profile.ID.String(), profile.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
