// Package pricing computes line totals, tax lines and order totals.
//
// Every amount is an int64 in the currency's minor unit. Intermediate values
// are exact decimals; rounding (half to even) happens once per output total and
// per-line figures are distributed from that total so displayed lines always
// add up to it.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

func isOnSale(price int64, salePrice *int64) bool {
	return salePrice != nil && *salePrice > 0 && *salePrice < price
}

// EffectiveUnitPrice is the sale price when present and lower than the list
// price, otherwise the list price.
func EffectiveUnitPrice(price int64, salePrice *int64) int64 {
	if isOnSale(price, salePrice) {
		return *salePrice
	}
	return price
}

// RoundMinor rounds an exact amount to the minor unit, half to even.
func RoundMinor(d decimal.Decimal) int64 {
	return d.RoundBank(0).IntPart()
}

// Percent returns amount × pct / 100 rounded half to even.
func Percent(amount int64, pct int64) int64 {
	return PercentOf(amount, decimal.NewFromInt(pct))
}

// PercentOf is Percent for a fractional rate.
func PercentOf(amount int64, pct decimal.Decimal) int64 {
	return RoundMinor(decimal.NewFromInt(amount).Mul(pct).Div(hundred))
}

// distribute splits total into integer parts that follow the exact shares as
// closely as possible (largest remainder). The parts always sum to total.
func distribute(total int64, exact []decimal.Decimal) []int64 {
	parts := make([]int64, len(exact))
	if len(exact) == 0 {
		return parts
	}

	type frac struct {
		idx int
		rem decimal.Decimal
	}
	fracs := make([]frac, len(exact))
	var assigned int64
	for i, e := range exact {
		floor := e.Floor()
		parts[i] = floor.IntPart()
		assigned += parts[i]
		fracs[i] = frac{idx: i, rem: e.Sub(floor)}
	}

	sort.SliceStable(fracs, func(a, b int) bool {
		return fracs[a].rem.GreaterThan(fracs[b].rem)
	})

	remainder := total - assigned
	for i := 0; remainder != 0; i++ {
		f := fracs[i%len(fracs)]
		if remainder > 0 {
			parts[f.idx]++
			remainder--
			continue
		}
		// rounding went down past the floors; take back from the smallest remainders
		g := fracs[len(fracs)-1-i%len(fracs)]
		parts[g.idx]--
		remainder++
	}
	return parts
}

// allocate splits total across weights proportionally.
func allocate(total int64, weights []int64) []int64 {
	var sum int64
	for _, w := range weights {
		sum += w
	}
	exact := make([]decimal.Decimal, len(weights))
	if sum == 0 {
		for i := range exact {
			exact[i] = decimal.Zero
		}
		return distribute(0, exact)
	}
	t := decimal.NewFromInt(total)
	s := decimal.NewFromInt(sum)
	for i, w := range weights {
		exact[i] = t.Mul(decimal.NewFromInt(w)).Div(s)
	}
	return distribute(total, exact)
}
