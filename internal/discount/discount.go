// Package discount evaluates order-level discount codes.
package discount

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/pricing"
)

// Repository is the persistence the discount engine needs.
type Repository interface {
	// FindDiscountByCode returns the non-deleted discount for code or ErrDiscountNotFound.
	FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error)
	// RedeemDiscount increments usageCount only while it is below usageLimit.
	// It returns false when the limit was already reached.
	RedeemDiscount(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// Evaluate returns the discount amount for a subtotal at the given instant.
func Evaluate(d *models.Discount, subtotal int64, now time.Time) (int64, error) {
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return 0, apperr.New(apperr.ErrDiscountExpired, "discount %s is not active yet", d.Code)
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return 0, apperr.New(apperr.ErrDiscountExpired, "discount %s has expired", d.Code)
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return 0, apperr.New(apperr.ErrDiscountExhausted, "discount %s reached its usage limit", d.Code)
	}
	if subtotal <= 0 {
		return 0, nil
	}

	var amount int64
	switch d.Type {
	case models.DiscountPercentage:
		pct, err := rate(d)
		if err != nil {
			return 0, err
		}
		amount = pricing.PercentOf(subtotal, pct)
	case models.DiscountFixedAmount:
		amount = d.Value
	}
	if amount < 0 {
		amount = 0
	}
	if amount > subtotal {
		amount = subtotal
	}
	return amount, nil
}

func rate(d *models.Discount) (decimal.Decimal, error) {
	if d.Percent == "" {
		return decimal.NewFromInt(d.Value), nil
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(d.Percent))
	if err != nil {
		return decimal.Zero, apperr.Wrap(apperr.ErrDiscountNotFound, err, "discount %s has an invalid percentage %q", d.Code, d.Percent)
	}
	return pct, nil
}

// Applied is a resolved discount code.
type Applied struct {
	Discount *models.Discount
	Amount   int64
}

type Service struct {
	repo Repository
	now  func() time.Time
	log  *slog.Logger
}

func NewService(repo Repository, now func() time.Time, log *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now, log: log}
}

// Apply resolves code against the subtotal. An empty code yields a zero
// discount and a nil Discount.
func (s *Service) Apply(ctx context.Context, code string, subtotal int64) (Applied, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Applied{}, nil
	}

	d, err := s.repo.FindDiscountByCode(ctx, code)
	if err != nil {
		return Applied{}, err
	}
	if d.DeletedAt != nil {
		return Applied{}, apperr.New(apperr.ErrDiscountNotFound, "discount %s not found", code)
	}

	amount, err := Evaluate(d, subtotal, s.now())
	if err != nil {
		s.log.Info("[DISCOUNT] code rejected", "code", code, "err", err)
		return Applied{}, err
	}
	return Applied{Discount: d, Amount: amount}, nil
}

// Redeem consumes one use of the discount. It must run inside the order
// confirmation transaction.
func (s *Service) Redeem(ctx context.Context, d *models.Discount) error {
	if d == nil {
		return nil
	}
	ok, err := s.repo.RedeemDiscount(ctx, d.ID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.ErrDiscountExhausted, "discount %s reached its usage limit", d.Code)
	}
	return nil
}

// NormalizeCode trims and upper-cases a code the way it is stored.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
