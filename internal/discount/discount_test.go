package discount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/store/memstore"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func limit(n int) *int { return &n }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		d        models.Discount
		subtotal int64
		want     int64
		err      *apperr.Error
	}{
		{"percentage", models.Discount{Type: models.DiscountPercentage, Value: 10}, 20000, 2000, nil},
		{"percentage rounds half to even", models.Discount{Type: models.DiscountPercentage, Value: 50}, 25, 12, nil},
		{"fractional percentage", models.Discount{Type: models.DiscountPercentage, Value: 12, Percent: "12.5"}, 20000, 2500, nil},
		{"fractional percentage rounds half to even", models.Discount{Type: models.DiscountPercentage, Percent: "12.5"}, 100, 12, nil},
		{"invalid percentage", models.Discount{Type: models.DiscountPercentage, Percent: "twelve"}, 1000, 0, apperr.ErrDiscountNotFound},
		{"fixed", models.Discount{Type: models.DiscountFixedAmount, Value: 1500}, 20000, 1500, nil},
		{"fixed clamped to subtotal", models.Discount{Type: models.DiscountFixedAmount, Value: 5000}, 3000, 3000, nil},
		{"percentage over 100 clamped", models.Discount{Type: models.DiscountPercentage, Value: 150}, 3000, 3000, nil},
		{"empty cart", models.Discount{Type: models.DiscountFixedAmount, Value: 500}, 0, 0, nil},
		{"not started", models.Discount{Type: models.DiscountFixedAmount, Value: 500, StartsAt: at(time.Hour)}, 1000, 0, apperr.ErrDiscountExpired},
		{"ended", models.Discount{Type: models.DiscountFixedAmount, Value: 500, EndsAt: at(-time.Minute)}, 1000, 0, apperr.ErrDiscountExpired},
		{"inside window", models.Discount{Type: models.DiscountFixedAmount, Value: 500, StartsAt: at(-time.Hour), EndsAt: at(time.Hour)}, 1000, 500, nil},
		{"limit reached", models.Discount{Type: models.DiscountFixedAmount, Value: 500, UsageLimit: limit(3), UsageCount: 3}, 1000, 0, apperr.ErrDiscountExhausted},
		{"limit not reached", models.Discount{Type: models.DiscountFixedAmount, Value: 500, UsageLimit: limit(3), UsageCount: 2}, 1000, 500, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(&tt.d, tt.subtotal, now)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyNormalizesCode(t *testing.T) {
	st := memstore.New()
	st.PutDiscount(models.Discount{Type: models.DiscountPercentage, Value: 10, Code: "YAZ10"})
	svc := NewService(st, func() time.Time { return now }, logging.Discard())

	applied, err := svc.Apply(context.Background(), "  yaz10 ", 20000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), applied.Amount)
	assert.Equal(t, "YAZ10", applied.Discount.Code)

	applied, err = svc.Apply(context.Background(), "", 20000)
	require.NoError(t, err)
	assert.Nil(t, applied.Discount)
	assert.Zero(t, applied.Amount)

	_, err = svc.Apply(context.Background(), "KIS20", 20000)
	assert.ErrorIs(t, err, apperr.ErrDiscountNotFound)
}

func TestApplyIgnoresDeletedDiscount(t *testing.T) {
	st := memstore.New()
	st.PutDiscount(models.Discount{Type: models.DiscountFixedAmount, Value: 100, Code: "OLD", DeletedAt: at(-time.Hour)})
	svc := NewService(st, func() time.Time { return now }, logging.Discard())

	_, err := svc.Apply(context.Background(), "OLD", 1000)
	assert.ErrorIs(t, err, apperr.ErrDiscountNotFound)
}

func TestRedeemStopsAtLimit(t *testing.T) {
	st := memstore.New()
	d := st.PutDiscount(models.Discount{Type: models.DiscountFixedAmount, Value: 100, Code: "TWICE", UsageLimit: limit(2)})
	svc := NewService(st, func() time.Time { return now }, logging.Discard())
	ctx := context.Background()

	require.NoError(t, svc.Redeem(ctx, &d))
	require.NoError(t, svc.Redeem(ctx, &d))
	assert.ErrorIs(t, svc.Redeem(ctx, &d), apperr.ErrDiscountExhausted)

	stored, ok := st.Discount(d.ID)
	require.True(t, ok)
	assert.Equal(t, 2, stored.UsageCount)

	assert.NoError(t, svc.Redeem(ctx, nil))
}

func TestRedeemWithoutLimit(t *testing.T) {
	st := memstore.New()
	d := st.PutDiscount(models.Discount{Type: models.DiscountFixedAmount, Value: 100, Code: "ALWAYS"})
	svc := NewService(st, nil, logging.Discard())

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Redeem(context.Background(), &d))
	}
	stored, _ := st.Discount(d.ID)
	assert.Equal(t, 5, stored.UsageCount)
}
