package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CheckoutState string

const (
	CheckoutAddressPending CheckoutState = "address_pending"
	CheckoutRatesPending   CheckoutState = "rates_pending"
	CheckoutRateSelected   CheckoutState = "rate_selected"
	CheckoutConfirmed      CheckoutState = "confirmed"
)

// Address is a postal/contact address captured during checkout.
type Address struct {
	FullName   string `bson:"fullName" json:"fullName" validate:"required"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email      string `bson:"email,omitempty" json:"email,omitempty" validate:"omitempty,email"`
	Country    string `bson:"country" json:"country" validate:"required"`
	City       string `bson:"city" json:"city" validate:"required"`
	District   string `bson:"district,omitempty" json:"district,omitempty"`
	Line1      string `bson:"line1" json:"line1" validate:"required"`
	Line2      string `bson:"line2,omitempty" json:"line2,omitempty"`
	PostalCode string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
}

// Normalized trims every field.
func (a Address) Normalized() Address {
	return Address{
		FullName:   strings.TrimSpace(a.FullName),
		Phone:      strings.TrimSpace(a.Phone),
		Email:      strings.ToLower(strings.TrimSpace(a.Email)),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		City:       strings.TrimSpace(a.City),
		District:   strings.TrimSpace(a.District),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		PostalCode: strings.TrimSpace(a.PostalCode),
	}
}

// Fingerprint identifies the destination a rate was quoted for.
func (a Address) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		a.Country, a.City, a.District, a.PostalCode, a.Line1, a.Line2,
	}, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

// ShippingRate is a carrier (or fallback) offer for a destination.
type ShippingRate struct {
	Provider      string `bson:"provider" json:"provider"`
	ServiceCode   string `bson:"serviceCode" json:"serviceCode"`
	ServiceName   string `bson:"serviceName" json:"serviceName"`
	Amount        int64  `bson:"amount" json:"amount"`
	Currency      string `bson:"currency" json:"currency"`
	EstimatedDays int    `bson:"estimatedDays,omitempty" json:"estimatedDays,omitempty"`
	Payload       string `bson:"payload,omitempty" json:"-"`
}

// Checkout is the draft context keyed by the cart it belongs to.
type Checkout struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	CartID          primitive.ObjectID  `bson:"cartId" json:"cartId"`
	State           CheckoutState       `bson:"state" json:"state"`
	ShippingAddress *Address            `bson:"shippingAddress,omitempty" json:"shippingAddress,omitempty"`
	BillingAddress  *Address            `bson:"billingAddress,omitempty" json:"billingAddress,omitempty"`
	QuotedFor       string              `bson:"quotedFor,omitempty" json:"-"`
	QuotedRates     []ShippingRate      `bson:"quotedRates,omitempty" json:"quotedRates,omitempty"`
	SelectedRate    *ShippingRate       `bson:"selectedRate,omitempty" json:"selectedRate,omitempty"`
	DiscountCode    string              `bson:"discountCode,omitempty" json:"discountCode,omitempty"`
	OrderID         *primitive.ObjectID `bson:"orderId,omitempty" json:"orderId,omitempty"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}
