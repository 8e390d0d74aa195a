package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
)

// TaxConfig mirrors the tax settings of the store.
type TaxConfig struct {
	Name             string
	DefaultRate      decimal.Decimal
	CategoryRates    map[string]decimal.Decimal
	PricesIncludeTax bool
	ShippingExempt   bool
}

// RateFor returns the category override or the default rate.
func (c TaxConfig) RateFor(categoryID string) decimal.Decimal {
	if categoryID != "" {
		if r, ok := c.CategoryRates[categoryID]; ok {
			return r
		}
	}
	return c.DefaultRate
}

func (c TaxConfig) lineName(rate decimal.Decimal) string {
	name := c.Name
	if name == "" {
		name = "Tax"
	}
	return fmt.Sprintf("%s %s%%", name, rate.Mul(hundred).String())
}

type Line struct {
	Key        string
	Quantity   int
	UnitPrice  int64
	SalePrice  *int64
	CategoryID string
}

type Input struct {
	Lines []Line
	// Discount is the order-level discount, applied before tax.
	Discount int64
	// Shipping is the selected rate's amount as quoted; nil until a rate is chosen.
	Shipping *int64
}

type LineTotals struct {
	Key           string          `json:"key"`
	Quantity      int             `json:"quantity"`
	UnitEffective int64           `json:"unitEffective"`
	Gross         int64           `json:"-"`
	Subtotal      int64           `json:"lineSubtotal"`
	Discount      int64           `json:"lineDiscount"`
	Rate          decimal.Decimal `json:"rate"`
	Tax           int64           `json:"lineTax"`
	Total         int64           `json:"lineTotal"`
}

type TaxLine struct {
	// LineKey is empty for order-scope lines (shipping tax).
	LineKey string          `json:"lineKey,omitempty"`
	Name    string          `json:"name"`
	Rate    decimal.Decimal `json:"rate"`
	Base    int64           `json:"baseAmount"`
	Amount  int64           `json:"taxAmount"`
}

type Totals struct {
	Subtotal    int64        `json:"subtotal"`
	Discount    int64        `json:"discountTotal"`
	Tax         int64        `json:"taxTotal"`
	Shipping    int64        `json:"shippingTotal"`
	Grand       int64        `json:"grandTotal"`
	ShippingTax int64        `json:"shippingTax"`
	Lines       []LineTotals `json:"lines"`
	TaxLines    []TaxLine    `json:"taxLines"`
}

// taxable is one base amount with its rate; items first, shipping last.
type taxable struct {
	line     int
	shipping bool
	base     int64
	rate     decimal.Decimal
}

func (t taxable) exact(inclusive bool) decimal.Decimal {
	b := decimal.NewFromInt(t.base)
	if inclusive {
		return b.Mul(t.rate).Div(one.Add(t.rate))
	}
	return b.Mul(t.rate)
}

// Compute prices a cart. It never performs I/O and never returns an error for
// well-formed input; Check validates the result.
func Compute(cfg TaxConfig, in Input) Totals {
	lines := make([]LineTotals, len(in.Lines))
	gross := make([]int64, len(in.Lines))
	var subtotalGross int64
	for i, l := range in.Lines {
		unit := EffectiveUnitPrice(l.UnitPrice, l.SalePrice)
		g := unit * int64(l.Quantity)
		gross[i] = g
		subtotalGross += g
		lines[i] = LineTotals{
			Key:           l.Key,
			Quantity:      l.Quantity,
			UnitEffective: unit,
			Gross:         g,
			Rate:          cfg.RateFor(l.CategoryID),
		}
	}

	discount := in.Discount
	if discount < 0 {
		discount = 0
	}
	if discount > subtotalGross {
		discount = subtotalGross
	}
	shares := allocate(discount, gross)

	// zero-rate bases carry no tax and stay out of the distribution
	items := make([]taxable, 0, len(lines)+1)
	for i := range lines {
		lines[i].Discount = shares[i]
		if lines[i].Rate.IsZero() {
			continue
		}
		items = append(items, taxable{line: i, base: gross[i] - shares[i], rate: lines[i].Rate})
	}

	var shippingGross int64
	hasShipping := in.Shipping != nil
	if hasShipping {
		shippingGross = *in.Shipping
		if !cfg.ShippingExempt && !cfg.DefaultRate.IsZero() {
			items = append(items, taxable{line: -1, shipping: true, base: shippingGross, rate: cfg.DefaultRate})
		}
	}

	// Exact amounts are summed per rate and rounded once; one division per
	// rate group keeps a single-rate inclusive cart at exactly
	// grand × rate / (1 + rate) before rounding.
	exact := make([]decimal.Decimal, len(items))
	groups := map[string]*taxable{}
	var order []string
	for i, it := range items {
		exact[i] = it.exact(cfg.PricesIncludeTax)
		key := it.rate.String()
		g, ok := groups[key]
		if !ok {
			g = &taxable{rate: it.rate}
			groups[key] = g
			order = append(order, key)
		}
		g.base += it.base
	}
	exactTotal := decimal.Zero
	for _, key := range order {
		exactTotal = exactTotal.Add(groups[key].exact(cfg.PricesIncludeTax))
	}
	taxTotal := RoundMinor(exactTotal)
	perItem := distribute(taxTotal, exact)

	totals := Totals{Discount: discount, Tax: taxTotal}
	for i, it := range items {
		amount := perItem[i]
		key := ""
		if it.shipping {
			totals.ShippingTax = amount
		} else {
			lines[it.line].Tax = amount
			key = lines[it.line].Key
		}
		totals.TaxLines = append(totals.TaxLines, TaxLine{
			LineKey: key,
			Name:    cfg.lineName(it.rate),
			Rate:    it.rate,
			Base:    it.base,
			Amount:  amount,
		})
	}

	for i := range lines {
		if cfg.PricesIncludeTax {
			lines[i].Subtotal = lines[i].Gross - lines[i].Tax
		} else {
			lines[i].Subtotal = lines[i].Gross
		}
		lines[i].Total = lines[i].Subtotal + lines[i].Tax
		totals.Subtotal += lines[i].Subtotal
	}

	if hasShipping {
		totals.Shipping = shippingGross
		if cfg.PricesIncludeTax {
			totals.Shipping = shippingGross - totals.ShippingTax
		}
	}

	totals.Lines = lines
	totals.Grand = totals.Subtotal - totals.Discount + totals.Tax + totals.Shipping
	return totals
}

// Check verifies the reconciliation invariants of a computed result.
func (t Totals) Check() error {
	if t.Grand != t.Subtotal-t.Discount+t.Tax+t.Shipping {
		return apperr.New(apperr.ErrTotalsMismatch, "grand %d != %d - %d + %d + %d",
			t.Grand, t.Subtotal, t.Discount, t.Tax, t.Shipping)
	}
	var lineTax, taxLines, lineDiscount int64
	for _, l := range t.Lines {
		lineTax += l.Tax
		lineDiscount += l.Discount
		if l.Total != l.Subtotal+l.Tax {
			return apperr.New(apperr.ErrTotalsMismatch, "line %s total %d != %d + %d", l.Key, l.Total, l.Subtotal, l.Tax)
		}
	}
	for _, tl := range t.TaxLines {
		taxLines += tl.Amount
	}
	if lineTax+t.ShippingTax != t.Tax {
		return apperr.New(apperr.ErrTotalsMismatch, "line taxes %d + shipping tax %d != %d", lineTax, t.ShippingTax, t.Tax)
	}
	if taxLines != t.Tax {
		return apperr.New(apperr.ErrTotalsMismatch, "tax lines %d != %d", taxLines, t.Tax)
	}
	if lineDiscount != t.Discount {
		return apperr.New(apperr.ErrTotalsMismatch, "line discounts %d != %d", lineDiscount, t.Discount)
	}
	return nil
}
