package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PrintStatus string

const (
	PrintStatusPending      PrintStatus = "pending"
	PrintStatusAcknowledged PrintStatus = "acknowledged"
)

// OrderTab is a shared mutable pre-order identified by its slug (table-3, bar, ...).
type OrderTab struct {
	ID                    uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Slug                  string           `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug"`
	Items                 []OrderTabItem   `gorm:"foreignKey:TabID" json:"items"`
	DiscountPercentage    *decimal.Decimal `gorm:"type:decimal(7,4)" json:"discount_percentage,omitempty"`
	DiscountJustification string           `gorm:"type:text" json:"discount_justification,omitempty"`
	OrderID               *uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`      // order derived from the tab, while not concluded
	LastOrderID           *uuid.UUID       `gorm:"type:uuid" json:"last_order_id"`       // most recently concluded order
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func (t *OrderTab) IsEmpty() bool {
	for _, item := range t.Items {
		if item.Quantity > 0 {
			return false
		}
	}
	return true
}

// HasPrintedLines reports whether any line was already sent to the kitchen.
func (t *OrderTab) HasPrintedLines() bool {
	for _, item := range t.Items {
		if item.PrintedQuantity > 0 {
			return true
		}
	}
	return false
}

type InternalNote struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Variations maps a variation name (size, milk) to the chosen value.
type Variations map[string]string

// Key renders variations canonically so equal choices share one tab line.
func (v Variations) Key() string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+v[k])
	}
	return strings.Join(parts, ";")
}

// OrderTabItem is one line of a tab. The (tab, product, variations) triple is
// unique so concurrent adds collapse into a single incremented row.
type OrderTabItem struct {
	ID               uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TabID            uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_tab_line" json:"tab_id"`
	ProductID        string        `gorm:"type:varchar(100);not null;uniqueIndex:idx_tab_line" json:"product_id"`
	VariationKey     string        `gorm:"type:varchar(255);not null;default:'';uniqueIndex:idx_tab_line" json:"-"`
	ChosenVariations Variations    `gorm:"type:jsonb;serializer:json" json:"chosen_variations,omitempty"`
	Quantity         int           `gorm:"type:int;not null;check:quantity >= 0" json:"quantity"`
	PrintedQuantity  int           `gorm:"type:int;not null;default:0;check:printed_quantity >= 0" json:"printed_quantity"`
	PrintStatus      PrintStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"print_status"`
	InternalNote     *InternalNote `gorm:"type:jsonb;serializer:json" json:"internal_note,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewlyOrdered is the quantity not yet printed on a kitchen ticket.
func (i *OrderTabItem) NewlyOrdered() int {
	if n := i.Quantity - i.PrintedQuantity; n > 0 {
		return n
	}
	return 0
}

type PrintKind string

const (
	PrintKindKitchen  PrintKind = "kitchen"
	PrintKindCustomer PrintKind = "customer"
)

// TabPrintEntry keeps a printed ticket for reprint and audit.
type TabPrintEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TabID     uuid.UUID `gorm:"type:uuid;not null;index" json:"tab_id"`
	Kind      PrintKind `gorm:"type:varchar(20);not null" json:"kind"`
	Tag       string    `gorm:"type:varchar(50)" json:"tag,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	PrintedBy string    `gorm:"type:varchar(100)" json:"printed_by"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
