package pricing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vat20(inclusive bool) TaxConfig {
	return TaxConfig{
		Name:             "KDV",
		DefaultRate:      decimal.RequireFromString("0.20"),
		PricesIncludeTax: inclusive,
	}
}

func amount(v int64) *int64 { return &v }

func TestComputeExclusiveScenario(t *testing.T) {
	totals := Compute(vat20(false), Input{
		Lines:    []Line{{Key: "p1", Quantity: 2, UnitPrice: 10000}},
		Shipping: amount(3000),
	})

	require.NoError(t, totals.Check())
	assert.Equal(t, int64(20000), totals.Subtotal)
	assert.Equal(t, int64(0), totals.Discount)
	assert.Equal(t, int64(4600), totals.Tax)
	assert.Equal(t, int64(3000), totals.Shipping)
	assert.Equal(t, int64(27600), totals.Grand)
	assert.Equal(t, int64(4000), totals.Lines[0].Tax)
	assert.Equal(t, int64(600), totals.ShippingTax)
	require.Len(t, totals.TaxLines, 2)
	assert.Equal(t, "p1", totals.TaxLines[0].LineKey)
	assert.Equal(t, "", totals.TaxLines[1].LineKey)
	assert.Equal(t, "KDV 20%", totals.TaxLines[0].Name)
}

func TestComputeDiscountAppliedBeforeTax(t *testing.T) {
	totals := Compute(vat20(false), Input{
		Lines:    []Line{{Key: "p1", Quantity: 2, UnitPrice: 10000}},
		Discount: 2000,
		Shipping: amount(3000),
	})

	require.NoError(t, totals.Check())
	assert.Equal(t, int64(2000), totals.Discount)
	assert.Equal(t, int64(4200), totals.Tax)
	assert.Equal(t, int64(3600), totals.Lines[0].Tax)
	assert.Equal(t, int64(18000), totals.TaxLines[0].Base)
	assert.Equal(t, int64(25200), totals.Grand)
}

func TestComputeWithoutShippingHasNoShippingTaxLine(t *testing.T) {
	totals := Compute(vat20(false), Input{
		Lines: []Line{{Key: "p1", Quantity: 1, UnitPrice: 999}},
	})
	require.NoError(t, totals.Check())
	assert.Len(t, totals.TaxLines, 1)
	assert.Equal(t, int64(0), totals.Shipping)
	// 199.8 -> 200
	assert.Equal(t, int64(200), totals.Tax)
}

func TestComputeShippingExempt(t *testing.T) {
	cfg := vat20(false)
	cfg.ShippingExempt = true
	totals := Compute(cfg, Input{
		Lines:    []Line{{Key: "p1", Quantity: 1, UnitPrice: 1000}},
		Shipping: amount(500),
	})
	require.NoError(t, totals.Check())
	assert.Equal(t, int64(200), totals.Tax)
	assert.Equal(t, int64(0), totals.ShippingTax)
	assert.Len(t, totals.TaxLines, 1)
}

func TestComputeUsesSalePriceAndCategoryRate(t *testing.T) {
	cfg := vat20(false)
	cfg.CategoryRates = map[string]decimal.Decimal{
		"books": decimal.Zero,
		"food":  decimal.RequireFromString("0.01"),
	}
	totals := Compute(cfg, Input{
		Lines: []Line{
			{Key: "book", Quantity: 1, UnitPrice: 5000, CategoryID: "books"},
			{Key: "bread", Quantity: 3, UnitPrice: 1000, SalePrice: amount(800), CategoryID: "food"},
			{Key: "pen", Quantity: 1, UnitPrice: 1000, SalePrice: amount(1500)},
		},
	})
	require.NoError(t, totals.Check())
	assert.Equal(t, int64(800), totals.Lines[1].UnitEffective)
	assert.Equal(t, int64(1000), totals.Lines[2].UnitEffective)
	assert.Equal(t, int64(0), totals.Lines[0].Tax)
	assert.Equal(t, int64(24), totals.Lines[1].Tax)
	assert.Equal(t, int64(200), totals.Lines[2].Tax)
	// the zero-rate line gets no tax line
	assert.Len(t, totals.TaxLines, 2)
}

func TestComputeInclusiveRoundTrip(t *testing.T) {
	rate := decimal.RequireFromString("0.20")
	totals := Compute(vat20(true), Input{
		Lines:    []Line{{Key: "p1", Quantity: 3, UnitPrice: 3333}, {Key: "p2", Quantity: 1, UnitPrice: 1999}},
		Shipping: amount(1499),
	})
	require.NoError(t, totals.Check())

	assert.Equal(t, int64(3*3333+1999+1499), totals.Grand)

	var sum int64
	for _, tl := range totals.TaxLines {
		sum += tl.Amount
	}
	want := RoundMinor(decimal.NewFromInt(totals.Grand).Mul(rate).Div(one.Add(rate)))
	assert.Equal(t, want, sum)
	assert.Equal(t, want, totals.Tax)
}

func TestComputeGrandTotalInvariantRandomCarts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rates := []string{"0", "0.01", "0.08", "0.18", "0.20", "0.125"}

	for n := 0; n < 500; n++ {
		cfg := TaxConfig{
			DefaultRate:      decimal.RequireFromString(rates[rng.Intn(len(rates))]),
			PricesIncludeTax: rng.Intn(2) == 0,
			ShippingExempt:   rng.Intn(4) == 0,
			CategoryRates: map[string]decimal.Decimal{
				"c1": decimal.RequireFromString(rates[rng.Intn(len(rates))]),
				"c2": decimal.RequireFromString(rates[rng.Intn(len(rates))]),
			},
		}
		var lines []Line
		var gross int64
		for i := 0; i < 1+rng.Intn(6); i++ {
			l := Line{
				Key:        fmt.Sprintf("p%d", i),
				Quantity:   1 + rng.Intn(5),
				UnitPrice:  int64(1 + rng.Intn(100000)),
				CategoryID: []string{"", "c1", "c2"}[rng.Intn(3)],
			}
			if rng.Intn(3) == 0 {
				l.SalePrice = amount(int64(1 + rng.Intn(100000)))
			}
			gross += EffectiveUnitPrice(l.UnitPrice, l.SalePrice) * int64(l.Quantity)
			lines = append(lines, l)
		}
		in := Input{Lines: lines, Discount: int64(rng.Intn(int(gross) + 100))}
		if rng.Intn(2) == 0 {
			in.Shipping = amount(int64(rng.Intn(5000)))
		}

		totals := Compute(cfg, in)
		require.NoError(t, totals.Check(), "cart %d", n)
		assert.LessOrEqual(t, totals.Discount, gross)
		for _, l := range totals.Lines {
			assert.GreaterOrEqual(t, l.Tax, int64(0))
		}
	}
}

func TestDistributeKeepsTotal(t *testing.T) {
	parts := allocate(100, []int64{1, 1, 1})
	assert.Equal(t, []int64{34, 33, 33}, parts)

	parts = allocate(0, []int64{0, 0})
	assert.Equal(t, []int64{0, 0}, parts)

	parts = allocate(7, []int64{5000, 3000, 2000})
	var sum int64
	for _, p := range parts {
		sum += p
	}
	assert.Equal(t, int64(7), sum)
}

func TestPercentRoundsHalfToEven(t *testing.T) {
	assert.Equal(t, int64(2000), Percent(20000, 10))
	// 12.5 -> 12, 13.5 -> 14
	assert.Equal(t, int64(12), Percent(125, 10))
	assert.Equal(t, int64(14), Percent(135, 10))
	assert.Equal(t, int64(2500), PercentOf(20000, decimal.RequireFromString("12.5")))
	assert.Equal(t, int64(1), PercentOf(10, decimal.RequireFromString("12.5")))
}

func TestEffectiveUnitPrice(t *testing.T) {
	if got := EffectiveUnitPrice(10000, amount(7500)); got != 7500 {
		t.Fatalf("expected sale price 7500, got %v", got)
	}
	if got := EffectiveUnitPrice(10000, nil); got != 10000 {
		t.Fatalf("expected list price 10000 without sale, got %v", got)
	}
	if got := EffectiveUnitPrice(10000, amount(0)); got != 10000 {
		t.Fatalf("expected list price 10000 for zero sale price, got %v", got)
	}
}
