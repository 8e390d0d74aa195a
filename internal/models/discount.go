package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Discount Value is a percentage (0-100) for percentage discounts and a
// minor-unit amount for fixed_amount discounts. Percent, when set, is an exact
// decimal rate such as "12.5" and takes precedence over Value.
type Discount struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title      string             `bson:"title" json:"title"`
	Type       DiscountType       `bson:"type" json:"type"`
	Value      int64              `bson:"value" json:"value"`
	Percent    string             `bson:"percent,omitempty" json:"percent,omitempty"`
	Code       string             `bson:"code,omitempty" json:"code,omitempty"`
	UsageLimit *int               `bson:"usageLimit,omitempty" json:"usageLimit,omitempty"`
	UsageCount int                `bson:"usageCount" json:"usageCount"`
	StartsAt   *time.Time         `bson:"startsAt,omitempty" json:"startsAt,omitempty"`
	EndsAt     *time.Time         `bson:"endsAt,omitempty" json:"endsAt,omitempty"`
	DeletedAt  *time.Time         `bson:"deletedAt,omitempty" json:"-"`
}
