// Package ticket renders plain-text receipts: kitchen and customer tickets for
// tabs, X and Z reports for cash sessions. Rendering never computes new
// figures; it formats what callers already aggregated.
package ticket

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/currency"
)

// Width is the number of columns of a receipt printer line.
const Width = 42

type Mode string

const (
	ModeAll          Mode = "all"
	ModeNewlyOrdered Mode = "newlyOrdered"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeNewlyOrdered:
		return ModeNewlyOrdered, nil
	}
	return "", fmt.Errorf("unknown ticket mode %q", raw)
}

type Header struct {
	Title     string
	Reference string
	PrintedAt time.Time
	PrintedBy string
}

// Line is one tab line as shown on a ticket.
type Line struct {
	Name         string
	Tag          string
	Quantity     int
	NewlyOrdered int
	Variations   string
	Note         string
	Currency     currency.Code
	UnitPrice    decimal.Decimal
	Total        decimal.Decimal
	VatRate      decimal.Decimal
	Vat          decimal.Decimal
}

func row(left, right string) string {
	pad := Width - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right + "\n"
}

func rule(ch string) string {
	return strings.Repeat(ch, Width) + "\n"
}

func center(s string) string {
	if len(s) >= Width {
		return s + "\n"
	}
	return strings.Repeat(" ", (Width-len(s))/2) + s + "\n"
}

func writeHeader(b *strings.Builder, h Header) {
	b.WriteString(center(h.Title))
	if h.Reference != "" {
		b.WriteString(center(h.Reference))
	}
	b.WriteString(rule("="))
	b.WriteString(row("Date:", h.PrintedAt.Format("2006-01-02 15:04")))
	if h.PrintedBy != "" {
		b.WriteString(row("By:", h.PrintedBy))
	}
	b.WriteString(rule("-"))
}

// Group is the set of lines printed at one station.
type Group struct {
	Tag   string
	Lines []Line
}

// Kitchen selects lines for mode, optionally restricted to tag, and groups
// them by print tag. In newlyOrdered mode the quantity shown is the unprinted delta.
func Kitchen(lines []Line, mode Mode, tag string) []Group {
	byTag := map[string][]Line{}
	for _, l := range lines {
		if tag != "" && l.Tag != tag {
			continue
		}
		if mode == ModeNewlyOrdered {
			if l.NewlyOrdered <= 0 {
				continue
			}
			l.Quantity = l.NewlyOrdered
		}
		byTag[l.Tag] = append(byTag[l.Tag], l)
	}

	groups := make([]Group, 0, len(byTag))
	for t, ls := range byTag {
		groups = append(groups, Group{Tag: t, Lines: ls})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Tag < groups[j].Tag })
	return groups
}

func RenderKitchen(h Header, groups []Group) string {
	var b strings.Builder
	writeHeader(&b, h)
	if len(groups) == 0 {
		b.WriteString(center("Nothing to prepare"))
		return b.String()
	}
	for _, g := range groups {
		name := g.Tag
		if name == "" {
			name = "General"
		}
		b.WriteString("[" + strings.ToUpper(name) + "]\n")
		for _, l := range g.Lines {
			fmt.Fprintf(&b, "%3d x %s\n", l.Quantity, l.Name)
			if l.Variations != "" {
				b.WriteString("      " + l.Variations + "\n")
			}
			if l.Note != "" {
				b.WriteString("      ! " + l.Note + "\n")
			}
		}
		b.WriteString(rule("-"))
	}
	return b.String()
}

// VatGroup gathers the customer-ticket lines sharing a VAT rate.
type VatGroup struct {
	Rate  decimal.Decimal
	Lines []Line
	Net   decimal.Decimal
	Vat   decimal.Decimal
}

func Customer(lines []Line) []VatGroup {
	byRate := map[string]*VatGroup{}
	var keys []string
	for _, l := range lines {
		key := l.VatRate.String()
		g, ok := byRate[key]
		if !ok {
			g = &VatGroup{Rate: l.VatRate, Net: decimal.Zero, Vat: decimal.Zero}
			byRate[key] = g
			keys = append(keys, key)
		}
		g.Lines = append(g.Lines, l)
		g.Net = g.Net.Add(l.Total)
		g.Vat = g.Vat.Add(l.Vat)
	}
	groups := make([]VatGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, *byRate[k])
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Rate.LessThan(groups[j].Rate) })
	return groups
}

// Totals are the aggregate figures printed under a customer ticket.
type Totals struct {
	Currency currency.Code
	Discount decimal.Decimal
	Net      decimal.Decimal
	Vat      decimal.Decimal
	Total    decimal.Decimal
}

func RenderCustomer(h Header, groups []VatGroup, t Totals) string {
	var b strings.Builder
	writeHeader(&b, h)
	for _, g := range groups {
		b.WriteString(row("VAT "+g.Rate.String()+"%", ""))
		for _, l := range g.Lines {
			b.WriteString(row(fmt.Sprintf("%d x %s", l.Quantity, l.Name), currency.Format(l.Total, l.Currency)))
		}
	}
	b.WriteString(rule("-"))
	if t.Discount.IsPositive() {
		b.WriteString(row("Discount", "-"+currency.Format(t.Discount, t.Currency)))
	}
	b.WriteString(row("Total excl. VAT", currency.Format(t.Net, t.Currency)))
	for _, g := range groups {
		b.WriteString(row("VAT "+g.Rate.String()+"% on "+g.Net.StringFixed(t.Currency.DisplayPrecision()), currency.Format(g.Vat, t.Currency)))
	}
	b.WriteString(rule("="))
	b.WriteString(row("TOTAL", currency.Format(t.Total, t.Currency)))
	return b.String()
}
