package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailure PaymentStatus = "failure"
)

// Terminal reports whether no further status change is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailure
}

// Payment records one authorization attempt. Raw provider payloads are kept
// verbatim for dispute resolution.
type Payment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID        primitive.ObjectID `bson:"orderId" json:"orderId"`
	Provider       string             `bson:"provider" json:"provider"`
	Status         PaymentStatus      `bson:"status" json:"status"`
	Amount         int64              `bson:"amount" json:"amount"`
	Currency       string             `bson:"currency" json:"currency"`
	ConversationID string             `bson:"conversationId" json:"conversationId"`
	Token          string             `bson:"token,omitempty" json:"-"`
	TransactionID  string             `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	RawRequest     string             `bson:"rawRequest,omitempty" json:"-"`
	RawResponse    string             `bson:"rawResponse,omitempty" json:"-"`
	WebhookPayload string             `bson:"webhookPayload,omitempty" json:"-"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PaymentCompletion is what the callback writes when a payment leaves pending.
type PaymentCompletion struct {
	Status         PaymentStatus
	TransactionID  string
	WebhookPayload string
	At             time.Time
}
