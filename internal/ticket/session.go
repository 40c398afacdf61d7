package ticket

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/currency"
	"settlement/internal/model"
)

// SessionReport carries the already aggregated figures of a cash session.
type SessionReport struct {
	SessionID     string
	Currency      currency.Code
	OpenedAt      time.Time
	OpenedBy      string
	ClosedAt      *time.Time
	ClosedBy      string
	CashOpening   decimal.Decimal
	Incomes       []model.IncomeLine
	Outcomes      []model.OutcomeLine
	Cashback      decimal.Decimal
	CashClosing   *decimal.Decimal
	Theoretical   *decimal.Decimal
	Delta         *decimal.Decimal
	Justification string
	GeneratedAt   time.Time
	GeneratedBy   string
}

func (r SessionReport) money(d decimal.Decimal) string {
	return currency.Format(d, r.Currency)
}

func incomeLabel(l model.IncomeLine) string {
	label := string(l.Method)
	if l.Subtype != "" {
		label += " / " + l.Subtype
	}
	return label
}

func (r SessionReport) writeBody(b *strings.Builder) {
	b.WriteString(row("Opened:", r.OpenedAt.Format("2006-01-02 15:04")))
	b.WriteString(row("Opened by:", r.OpenedBy))
	b.WriteString(row("Cash opening:", r.money(r.CashOpening)))
	b.WriteString(rule("-"))

	b.WriteString("INCOMES\n")
	total := decimal.Zero
	if len(r.Incomes) == 0 {
		b.WriteString(row("  none", r.money(decimal.Zero)))
	}
	for _, l := range r.Incomes {
		b.WriteString(row("  "+incomeLabel(l)+" ("+strconv.Itoa(l.Count)+")", r.money(l.Amount)))
		total = total.Add(l.Amount)
	}
	b.WriteString(row("Total incomes", r.money(total)))
	b.WriteString(rule("-"))

	if len(r.Outcomes) > 0 {
		b.WriteString("OUTCOMES\n")
		for _, o := range r.Outcomes {
			b.WriteString(row("  "+o.Category, "-"+r.money(o.Amount)))
		}
		b.WriteString(rule("-"))
	}
	b.WriteString(row("Cashback", "-"+r.money(r.Cashback)))
}

// RenderX renders an interim report of an active session.
func RenderX(r SessionReport) string {
	var b strings.Builder
	writeHeader(&b, Header{Title: "X TICKET", Reference: r.SessionID, PrintedAt: r.GeneratedAt, PrintedBy: r.GeneratedBy})
	r.writeBody(&b)
	b.WriteString(rule("="))
	b.WriteString(center("Interim report, session still open"))
	return b.String()
}

// RenderZ renders the closing report from the figures stored at close.
func RenderZ(r SessionReport) string {
	var b strings.Builder
	writeHeader(&b, Header{Title: "Z TICKET", Reference: r.SessionID, PrintedAt: r.GeneratedAt, PrintedBy: r.GeneratedBy})
	r.writeBody(&b)
	b.WriteString(rule("="))
	if r.ClosedAt != nil {
		b.WriteString(row("Closed:", r.ClosedAt.Format("2006-01-02 15:04")))
		b.WriteString(row("Closed by:", r.ClosedBy))
	}
	if r.Theoretical != nil {
		b.WriteString(row("Theoretical cash:", r.money(*r.Theoretical)))
	}
	if r.CashClosing != nil {
		b.WriteString(row("Declared cash:", r.money(*r.CashClosing)))
	}
	if r.Delta != nil {
		b.WriteString(row("Cash delta:", r.money(*r.Delta)))
	}
	if r.Justification != "" {
		b.WriteString("Justification: " + r.Justification + "\n")
	}
	return b.String()
}
