package notify

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// amountKeys are meta entries holding decimal money strings.
var amountKeys = map[string]bool{
	"total":         true,
	"amount":        true,
	"amount_paid":   true,
	"refund_amount": true,
}

// Renderer turns notification payloads into human readable lines.
type Renderer struct {
	printer  *message.Printer
	currency currency.Unit
}

// NewRenderer builds a renderer for the given locale and fallback ISO currency
// code. Unknown codes fall back to USD.
func NewRenderer(tag language.Tag, currencyCode string) *Renderer {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		unit = currency.USD
	}
	return &Renderer{printer: message.NewPrinter(tag), currency: unit}
}

// Render formats p as a single line, e.g.
// "dispatch DSP_SHIP DSP-2025-00001 status=SHIPPED actor=7 shipped=1,200".
func (r *Renderer) Render(p Payload) string {
	var b strings.Builder
	b.WriteString(p.Workflow)
	b.WriteByte(' ')
	b.WriteString(p.Action)
	if p.Number != "" {
		b.WriteByte(' ')
		b.WriteString(p.Number)
	} else if p.EntityID != 0 {
		b.WriteString(r.printer.Sprintf(" #%d", p.EntityID))
	}
	if p.Status != "" {
		b.WriteString(" status=")
		b.WriteString(p.Status)
	}
	if p.ActorID != 0 {
		b.WriteString(r.printer.Sprintf(" actor=%v", p.ActorID))
	}

	unit := r.currency
	if code, ok := p.Meta["currency"].(string); ok {
		if parsed, err := currency.ParseISO(code); err == nil {
			unit = parsed
		}
	}
	keys := make([]string, 0, len(p.Meta))
	for k := range p.Meta {
		if k != "currency" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.value(k, p.Meta[k], unit))
	}
	return b.String()
}

func (r *Renderer) value(key string, v any, unit currency.Unit) string {
	if amountKeys[key] {
		if s, ok := v.(string); ok {
			if d, err := decimal.NewFromString(s); err == nil {
				return r.printer.Sprint(currency.Symbol(unit.Amount(d.InexactFloat64())))
			}
		}
	}
	switch n := v.(type) {
	case int64:
		return r.printer.Sprintf("%d", n)
	case int:
		return r.printer.Sprintf("%d", n)
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return r.printer.Sprintf("%d", int64(n))
		}
		return r.printer.Sprintf("%.2f", n)
	default:
		return r.printer.Sprint(v)
	}
}
