package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement/internal/config"
	"settlement/internal/live"
	"settlement/internal/model"
	"settlement/internal/pricing"
	"settlement/internal/ticket"
	"settlement/pkg/apperror"
)

type AddTabItemRequest struct {
	ProductID  string           `json:"product_id" binding:"required"`
	Variations model.Variations `json:"chosen_variations"`
}

type UpdateTabItemRequest struct {
	Quantity *int    `json:"quantity" binding:"required"`
	Note     *string `json:"note"`
}

type PrintedLine struct {
	ItemID   uuid.UUID `json:"item_id" binding:"required"`
	Quantity int       `json:"printed_quantity"`
}

type SetDiscountRequest struct {
	Percentage    decimal.Decimal `json:"percentage"`
	Justification string          `json:"justification"`
}

type AppendPrintRequest struct {
	Kind    model.PrintKind `json:"kind" binding:"required,oneof=kitchen customer"`
	Tag     string          `json:"tag"`
	Content string          `json:"content" binding:"required"`
}

type TicketRequest struct {
	Kind model.PrintKind `json:"kind" form:"kind"`
	Mode ticket.Mode     `json:"mode" form:"mode"`
	Tag  string          `json:"tag" form:"tag"`
}

// TabLine is a tab line enriched with its product and current price.
type TabLine struct {
	model.OrderTabItem
	Name     string                    `json:"name"`
	PrintTag string                    `json:"print_tag,omitempty"`
	VatRate  decimal.Decimal           `json:"vat_rate"`
	Snapshot *pricing.CurrencySnapshot `json:"currency_snapshot,omitempty"`
}

// TabView is what terminals render: lines, live totals and the derived order.
type TabView struct {
	ID                    uuid.UUID               `json:"id"`
	Slug                  string                  `json:"slug"`
	Items                 []TabLine               `json:"items"`
	DiscountPercentage    *decimal.Decimal        `json:"discount_percentage,omitempty"`
	DiscountJustification string                  `json:"discount_justification,omitempty"`
	OrderID               *uuid.UUID              `json:"order_id"`
	LastOrderID           *uuid.UUID              `json:"last_order_id"`
	Totals                *pricing.TotalsSnapshot `json:"currency_snapshot,omitempty"`
	Vat                   []pricing.VatLine       `json:"vat"`
}

type OrderTabService interface {
	GetOrderTab(ctx context.Context, slug string) (*TabView, error)
	AddItem(ctx context.Context, slug string, req AddTabItemRequest) (*model.OrderTabItem, error)
	// UpdateItem sets the line quantity and note. A zero quantity removes the line
	// and returns nil.
	UpdateItem(ctx context.Context, slug string, itemID uuid.UUID, req UpdateTabItemRequest, identity model.Identity) (*model.OrderTabItem, error)
	RemoveLine(ctx context.Context, slug string, itemID uuid.UUID) error
	RemoveTab(ctx context.Context, slug string, identity model.Identity) error
	MarkPrinted(ctx context.Context, slug string, lines []PrintedLine) error
	AppendPrintHistory(ctx context.Context, slug string, req AppendPrintRequest, identity model.Identity) (*model.TabPrintEntry, error)
	PrintHistory(ctx context.Context, slug string) ([]model.TabPrintEntry, error)
	SetDiscount(ctx context.Context, slug string, req SetDiscountRequest, identity model.Identity) (*model.OrderTab, error)
	ConcludeIfFullyPaidAndNotEmpty(ctx context.Context, slug string) (*ConcludeResult, error)
	BuildTicket(ctx context.Context, slug string, req TicketRequest, identity model.Identity) (string, error)
	// Print renders a ticket, stores it in the print history and, for kitchen
	// tickets, marks the printed lines.
	Print(ctx context.Context, slug string, req TicketRequest, identity model.Identity) (*model.TabPrintEntry, error)
}

type orderTabService struct {
	stores    Stores
	quoter    *quoter
	concluder *tabConcluder
	publisher live.Publisher
	cfg       config.Settlement
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewOrderTabService(stores Stores, rates RateService, publisher live.Publisher, cfg config.Settlement, log logrus.FieldLogger) OrderTabService {
	return &orderTabService{
		stores:    stores,
		quoter:    &quoter{catalog: stores.Products, rates: rates, builder: pricing.NewBuilder(), cfg: cfg},
		concluder: &tabConcluder{stores: stores, publisher: publisher, log: log},
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func validSlug(slug string) error {
	if strings.TrimSpace(slug) == "" || len(slug) > 100 {
		return apperror.Validation("invalid tab slug", apperror.FieldError{Field: "slug", Message: "must be 1 to 100 characters"})
	}
	return nil
}

func (s *orderTabService) findTab(ctx context.Context, slug string) (*model.OrderTab, error) {
	tab, err := s.stores.Tabs.FindBySlug(ctx, slug)
	if err != nil {
		return nil, notFound(err, "order tab "+slug)
	}
	return tab, nil
}

func (s *orderTabService) changed(slug string) {
	s.publisher.Publish(live.TabTopic(slug), live.EventTabUpdated)
}

func (s *orderTabService) GetOrderTab(ctx context.Context, slug string) (*TabView, error) {
	if err := validSlug(slug); err != nil {
		return nil, err
	}
	if _, err := s.stores.Tabs.GetOrCreate(ctx, slug); err != nil {
		return nil, err
	}
	if _, err := s.concluder.conclude(ctx, slug); err != nil {
		return nil, err
	}
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, tab)
}

func (s *orderTabService) view(ctx context.Context, tab *model.OrderTab) (*TabView, error) {
	v := &TabView{
		ID:                    tab.ID,
		Slug:                  tab.Slug,
		Items:                 make([]TabLine, 0, len(tab.Items)),
		DiscountPercentage:    tab.DiscountPercentage,
		DiscountJustification: tab.DiscountJustification,
		OrderID:               tab.OrderID,
		LastOrderID:           tab.LastOrderID,
		Vat:                   []pricing.VatLine{},
	}

	ids := make([]string, 0, len(tab.Items))
	for _, item := range tab.Items {
		ids = append(ids, item.ProductID)
	}
	found, err := s.stores.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make(map[string]model.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}

	var (
		lines  []quoteLine
		priced []int
	)
	for i, item := range tab.Items {
		line := TabLine{OrderTabItem: item}
		if p, ok := products[item.ProductID]; ok {
			line.Name, line.PrintTag = p.Name, p.PrintTag
			if item.Quantity > 0 {
				lines = append(lines, quoteLine{Product: p, Quantity: item.Quantity, Variations: item.ChosenVariations})
				priced = append(priced, i)
			}
		}
		v.Items = append(v.Items, line)
	}
	if len(lines) == 0 {
		return v, nil
	}

	res, _, err := s.quoter.quote(ctx, lines, discountOf(tab), "")
	if err != nil {
		return nil, err
	}
	for n, i := range priced {
		snap := res.Lines[n].Snapshot
		v.Items[i].Snapshot = &snap
		v.Items[i].VatRate = res.Lines[n].VatRate
	}
	v.Totals = &res.Totals
	v.Vat = res.Vat
	return v, nil
}

func discountOf(tab *model.OrderTab) decimal.Decimal {
	if tab.DiscountPercentage == nil {
		return decimal.Zero
	}
	return *tab.DiscountPercentage
}

func (s *orderTabService) AddItem(ctx context.Context, slug string, req AddTabItemRequest) (*model.OrderTabItem, error) {
	if err := validSlug(slug); err != nil {
		return nil, err
	}
	product, err := s.stores.Products.FindByID(ctx, req.ProductID)
	if err != nil {
		return nil, notFound(err, "product "+req.ProductID)
	}

	var item *model.OrderTabItem
	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		tab, err := s.stores.Tabs.GetOrCreate(txCtx, slug)
		if err != nil {
			return err
		}
		item, err = s.stores.Tabs.IncrementItem(txCtx, tab.ID, product.ID, req.Variations, 1)
		if err != nil {
			return err
		}
		if !product.Allows(item.Quantity) {
			return apperror.Validation("maximum quantity per order exceeded", apperror.FieldError{
				Field:   "quantity",
				Message: "must not exceed " + strconv.Itoa(product.MaxQuantityPerOrder),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(slug)
	return item, nil
}

// sharesStarted reports whether a shares-split payment was declared on the tab's order.
func (s *orderTabService) sharesStarted(ctx context.Context, tab *model.OrderTab) (bool, error) {
	if tab.OrderID == nil {
		return false, nil
	}
	order, err := s.stores.Orders.FindByID(ctx, *tab.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !order.SharesMode() {
		return false, nil
	}
	for _, p := range order.Payments {
		if p.IsShare && (p.Status == model.PaymentStatusPending || p.Status == model.PaymentStatusPaid) {
			return true, nil
		}
	}
	return false, nil
}

func (s *orderTabService) UpdateItem(ctx context.Context, slug string, itemID uuid.UUID, req UpdateTabItemRequest, identity model.Identity) (*model.OrderTabItem, error) {
	if req.Quantity == nil || *req.Quantity < 0 {
		return nil, apperror.Validation("invalid quantity", apperror.FieldError{Field: "quantity", Message: "must be 0 or greater"})
	}
	quantity := *req.Quantity
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return nil, err
	}

	var updated *model.OrderTabItem
	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.stores.Tabs.FindItem(txCtx, tab.ID, itemID)
		if err != nil {
			return notFound(err, "order tab item")
		}
		if s.cfg.LockItemsAfterPrint && quantity < item.PrintedQuantity {
			return apperror.Forbidden("%d unit(s) of this line were already sent to the kitchen", item.PrintedQuantity)
		}

		if quantity == 0 {
			started, err := s.sharesStarted(txCtx, tab)
			if err != nil {
				return err
			}
			if started {
				return apperror.Forbidden("a shares-split payment has already started on this tab")
			}
			return notFound(s.stores.Tabs.DeleteItem(txCtx, tab.ID, itemID), "order tab item")
		}

		product, err := s.stores.Products.FindByID(txCtx, item.ProductID)
		if err != nil {
			return notFound(err, "product "+item.ProductID)
		}
		if !product.Allows(quantity) {
			return apperror.Validation("maximum quantity per order exceeded", apperror.FieldError{Field: "quantity", Message: "too large for this product"})
		}

		note := item.InternalNote
		if req.Note != nil {
			note = nil
			if v := strings.TrimSpace(*req.Note); v != "" {
				note = &model.InternalNote{Value: v, UpdatedAt: s.now(), UpdatedBy: identity.Actor()}
			}
		}
		if err := s.stores.Tabs.UpdateItem(txCtx, tab.ID, itemID, quantity, note); err != nil {
			return notFound(err, "order tab item")
		}
		item.Quantity, item.InternalNote = quantity, note
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(slug)
	return updated, nil
}

func (s *orderTabService) RemoveLine(ctx context.Context, slug string, itemID uuid.UUID) error {
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return err
	}

	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.stores.Tabs.FindItem(txCtx, tab.ID, itemID)
		if err != nil {
			return notFound(err, "order tab item")
		}
		started, err := s.sharesStarted(txCtx, tab)
		if err != nil {
			return err
		}
		if started {
			return apperror.Forbidden("a shares-split payment has already started on this tab")
		}
		if s.cfg.LockItemsAfterPrint && item.PrintedQuantity > 0 {
			return apperror.Forbidden("line was already sent to the kitchen")
		}
		return notFound(s.stores.Tabs.DeleteItem(txCtx, tab.ID, itemID), "order tab item")
	})
	if err != nil {
		return err
	}

	s.changed(slug)
	return nil
}

func (s *orderTabService) RemoveTab(ctx context.Context, slug string, identity model.Identity) error {
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return err
	}

	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		started, err := s.sharesStarted(txCtx, tab)
		if err != nil {
			return err
		}
		if started {
			return apperror.Forbidden("a shares-split payment has already started on this tab")
		}
		if s.cfg.LockItemsAfterPrint && tab.HasPrintedLines() {
			return apperror.Forbidden("tab has lines already sent to the kitchen")
		}
		if tab.OrderID != nil {
			order, err := s.stores.Orders.FindByID(txCtx, *tab.OrderID)
			if err == nil && order.Status == model.OrderStatusPending {
				return apperror.Conflict("tab has pending order #%d, cancel it first", order.Number)
			}
		}
		if err := s.stores.Tabs.Delete(txCtx, tab.ID); err != nil {
			return err
		}
		return writeAudit(txCtx, s.stores.Audit, identity, model.ActionRemoveTab, tab.ID.String(), slug, map[string]interface{}{
			"lines": len(tab.Items),
		})
	})
	if err != nil {
		return err
	}

	s.changed(slug)
	return nil
}

func (s *orderTabService) MarkPrinted(ctx context.Context, slug string, lines []PrintedLine) error {
	for i, l := range lines {
		if l.Quantity < 0 {
			return apperror.Validation("invalid printed quantity", apperror.FieldError{
				Field:   "lines[" + strconv.Itoa(i) + "].printed_quantity",
				Message: "must be 0 or greater",
			})
		}
	}
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return err
	}

	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, l := range lines {
			item, err := s.stores.Tabs.FindItem(txCtx, tab.ID, l.ItemID)
			if err != nil {
				return notFound(err, "order tab item")
			}
			if err := s.stores.Tabs.MarkPrinted(txCtx, tab.ID, l.ItemID, min(l.Quantity, item.Quantity)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.changed(slug)
	return nil
}

func (s *orderTabService) AppendPrintHistory(ctx context.Context, slug string, req AppendPrintRequest, identity model.Identity) (*model.TabPrintEntry, error) {
	if req.Kind != model.PrintKindKitchen && req.Kind != model.PrintKindCustomer {
		return nil, apperror.Validation("invalid print kind", apperror.FieldError{Field: "kind", Message: "must be kitchen or customer"})
	}
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return nil, err
	}
	entry := &model.TabPrintEntry{
		TabID:     tab.ID,
		Kind:      req.Kind,
		Tag:       req.Tag,
		Content:   req.Content,
		PrintedBy: identity.Actor(),
	}
	if err := s.stores.Tabs.AppendPrintEntry(ctx, entry, s.cfg.PrintHistoryLimit); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *orderTabService) PrintHistory(ctx context.Context, slug string) ([]model.TabPrintEntry, error) {
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.stores.Tabs.ListPrintEntries(ctx, tab.ID)
}

func (s *orderTabService) SetDiscount(ctx context.Context, slug string, req SetDiscountRequest, identity model.Identity) (*model.OrderTab, error) {
	if req.Percentage.IsNegative() || req.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperror.Validation("invalid discount", apperror.FieldError{Field: "percentage", Message: "must be between 0 and 100"})
	}
	justification := strings.TrimSpace(req.Justification)
	if req.Percentage.IsPositive() && justification == "" {
		return nil, apperror.Validation("discount requires a justification", apperror.FieldError{Field: "justification", Message: "is required"})
	}
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return nil, err
	}
	if tab.OrderID != nil {
		return nil, apperror.Conflict("tab prices are frozen by its pending order")
	}

	var percentage *decimal.Decimal
	if req.Percentage.IsPositive() {
		p := req.Percentage
		percentage = &p
	} else {
		justification = ""
	}

	err = s.stores.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.stores.Tabs.SetDiscount(txCtx, tab.ID, percentage, justification); err != nil {
			return err
		}
		return writeAudit(txCtx, s.stores.Audit, identity, model.ActionSetTabDiscount, tab.ID.String(), slug, map[string]interface{}{
			"percentage":    req.Percentage,
			"justification": justification,
		})
	})
	if err != nil {
		return nil, err
	}

	tab.DiscountPercentage, tab.DiscountJustification = percentage, justification
	s.changed(slug)
	return tab, nil
}

func (s *orderTabService) ConcludeIfFullyPaidAndNotEmpty(ctx context.Context, slug string) (*ConcludeResult, error) {
	return s.concluder.conclude(ctx, slug)
}

func (s *orderTabService) BuildTicket(ctx context.Context, slug string, req TicketRequest, identity model.Identity) (string, error) {
	text, _, err := s.render(ctx, slug, req, identity)
	return text, err
}

// render returns the ticket text and, for kitchen tickets, the printed lines.
func (s *orderTabService) render(ctx context.Context, slug string, req TicketRequest, identity model.Identity) (string, []PrintedLine, error) {
	mode, err := ticket.ParseMode(string(req.Mode))
	if err != nil {
		return "", nil, apperror.Validation(err.Error(), apperror.FieldError{Field: "mode", Message: "must be all or newlyOrdered"})
	}
	tab, err := s.findTab(ctx, slug)
	if err != nil {
		return "", nil, err
	}
	v, err := s.view(ctx, tab)
	if err != nil {
		return "", nil, err
	}

	header := ticket.Header{Title: slug, PrintedAt: s.now(), PrintedBy: identity.Actor()}
	switch req.Kind {
	case model.PrintKindCustomer:
		if v.Totals == nil {
			return "", nil, apperror.Validation("tab is empty")
		}
		lines := make([]ticket.Line, 0, len(v.Items))
		for _, item := range v.Items {
			if item.Snapshot == nil {
				continue
			}
			main := item.Snapshot.Main
			lines = append(lines, ticket.Line{
				Name:      item.Name,
				Quantity:  item.Quantity,
				Currency:  main.Currency,
				UnitPrice: main.UnitPrice,
				Total:     main.TotalPrice,
				VatRate:   item.VatRate,
			})
		}
		t := v.Totals.Main
		return ticket.RenderCustomer(header, ticket.Customer(lines), ticket.Totals{
			Currency: t.Currency,
			Discount: t.Discount,
			Net:      t.Net,
			Vat:      t.Vat,
			Total:    t.Total,
		}), nil, nil
	case model.PrintKindKitchen, "":
		var (
			lines   []ticket.Line
			printed []PrintedLine
		)
		for _, item := range v.Items {
			if item.Quantity == 0 {
				continue
			}
			l := ticket.Line{
				Name:         item.Name,
				Tag:          item.PrintTag,
				Quantity:     item.Quantity,
				NewlyOrdered: item.NewlyOrdered(),
				Variations:   item.ChosenVariations.Key(),
			}
			if item.InternalNote != nil {
				l.Note = item.InternalNote.Value
			}
			lines = append(lines, l)
			if req.Tag != "" && item.PrintTag != req.Tag {
				continue
			}
			if mode == ticket.ModeNewlyOrdered && item.NewlyOrdered() == 0 {
				continue
			}
			printed = append(printed, PrintedLine{ItemID: item.ID, Quantity: item.Quantity})
		}
		return ticket.RenderKitchen(header, ticket.Kitchen(lines, mode, req.Tag)), printed, nil
	default:
		return "", nil, apperror.Validation("invalid ticket kind", apperror.FieldError{Field: "kind", Message: "must be kitchen or customer"})
	}
}

func (s *orderTabService) Print(ctx context.Context, slug string, req TicketRequest, identity model.Identity) (*model.TabPrintEntry, error) {
	text, printed, err := s.render(ctx, slug, req, identity)
	if err != nil {
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = model.PrintKindKitchen
	}
	if len(printed) > 0 {
		if err := s.MarkPrinted(ctx, slug, printed); err != nil {
			return nil, err
		}
	}
	return s.AppendPrintHistory(ctx, slug, AppendPrintRequest{Kind: kind, Tag: req.Tag, Content: text}, identity)
}
