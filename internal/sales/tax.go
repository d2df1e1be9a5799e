package sales

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tax detail types.
const (
	TaxExport = "EXPORT"
	TaxCGST   = "CGST"
	TaxSGST   = "SGST"
	TaxIGST   = "IGST"
	TaxSales  = "SALES_TAX"
	TaxVAT    = "VAT"
)

// TaxDetail is one component of an order's tax, persisted as tax_details JSON.
type TaxDetail struct {
	Type   string          `json:"type"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// TaxLine is the taxable part of one order line. A non-nil Rate overrides the
// jurisdiction's default rate where item specific rates apply (GST and VAT).
type TaxLine struct {
	Subtotal decimal.Decimal
	Rate     *decimal.Decimal
}

// TaxInput carries everything the tax rules depend on.
type TaxInput struct {
	Customer  Customer
	Warehouse Warehouse
	Items     []TaxLine
}

// LineTax is the computed tax of one line.
type LineTax struct {
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// TaxResult is the outcome of CalculateOrderTax.
type TaxResult struct {
	TaxAmount decimal.Decimal
	Details   []TaxDetail
	Lines     []LineTax
}

// TaxCalculator applies jurisdiction rules. Rates are percentages.
type TaxCalculator struct {
	GSTRate        decimal.Decimal
	USStateRates   map[string]decimal.Decimal
	VATRates       map[string]decimal.Decimal
	DefaultVATRate decimal.Decimal
}

// NewTaxCalculator returns a calculator with the built-in rate tables.
func NewTaxCalculator() *TaxCalculator {
	pct := decimal.RequireFromString
	return &TaxCalculator{
		GSTRate: pct("18"),
		USStateRates: map[string]decimal.Decimal{
			"CA": pct("7.25"),
			"FL": pct("6"),
			"IL": pct("6.25"),
			"NY": pct("4"),
			"TX": pct("6.25"),
			"WA": pct("6.5"),
		},
		VATRates: map[string]decimal.Decimal{
			"AU": pct("10"),
			"DE": pct("19"),
			"FR": pct("20"),
			"GB": pct("20"),
			"ID": pct("11"),
			"NL": pct("21"),
			"SG": pct("9"),
		},
		DefaultVATRate: decimal.Zero,
	}
}

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

func percentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred).Round(2)
}

// CalculateOrderTax computes per line and order level tax:
//   - cross-border sales are zero rated exports;
//   - India charges CGST and SGST at half the rate each within a state and IGST across states;
//   - the US charges the destination state's sales tax;
//   - everything else pays the destination country's VAT.
func (c *TaxCalculator) CalculateOrderTax(in TaxInput) TaxResult {
	origin := strings.ToUpper(in.Warehouse.Country)
	dest := strings.ToUpper(in.Customer.Country)
	res := TaxResult{TaxAmount: decimal.Zero, Lines: make([]LineTax, len(in.Items))}

	if origin != dest {
		for i := range in.Items {
			res.Lines[i] = LineTax{Rate: decimal.Zero, Amount: decimal.Zero}
		}
		res.Details = []TaxDetail{{Type: TaxExport, Rate: decimal.Zero, Amount: decimal.Zero}}
		return res
	}

	var details detailSet
	switch dest {
	case "IN":
		intrastate := strings.EqualFold(in.Warehouse.State, in.Customer.State)
		for i, item := range in.Items {
			rate := c.GSTRate
			if item.Rate != nil {
				rate = *item.Rate
			}
			tax := res.addLine(i, item.Subtotal, rate)
			if intrastate {
				central := tax.Div(two).Round(2)
				details.add(TaxCGST, rate.Div(two), central)
				details.add(TaxSGST, rate.Div(two), tax.Sub(central))
			} else {
				details.add(TaxIGST, rate, tax)
			}
		}
	case "US":
		rate, ok := c.USStateRates[strings.ToUpper(in.Customer.State)]
		if !ok {
			rate = decimal.Zero
		}
		for i, item := range in.Items {
			details.add(TaxSales, rate, res.addLine(i, item.Subtotal, rate))
		}
	default:
		base, ok := c.VATRates[dest]
		if !ok {
			base = c.DefaultVATRate
		}
		for i, item := range in.Items {
			rate := base
			if item.Rate != nil {
				rate = *item.Rate
			}
			details.add(TaxVAT, rate, res.addLine(i, item.Subtotal, rate))
		}
	}
	res.Details = details.items
	return res
}

func (r *TaxResult) addLine(i int, subtotal, rate decimal.Decimal) decimal.Decimal {
	tax := percentOf(subtotal, rate)
	r.Lines[i] = LineTax{Rate: rate, Amount: tax}
	r.TaxAmount = r.TaxAmount.Add(tax)
	return tax
}

// detailSet accumulates tax details per (type, rate) in first-seen order.
type detailSet struct {
	items []TaxDetail
}

func (d *detailSet) add(kind string, rate, amount decimal.Decimal) {
	for i := range d.items {
		if d.items[i].Type == kind && d.items[i].Rate.Equal(rate) {
			d.items[i].Amount = d.items[i].Amount.Add(amount)
			return
		}
	}
	d.items = append(d.items, TaxDetail{Type: kind, Rate: rate, Amount: amount})
}
