package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderDraft          OrderStatus = "draft"
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderFailed         OrderStatus = "failed"
	OrderShipped        OrderStatus = "shipped"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
	OrderRefunded       OrderStatus = "refunded"
)

type TaxScope string

const (
	TaxScopeOrder TaxScope = "order"
	TaxScopeItem  TaxScope = "item"
)

type AddressType string

const (
	AddressShipping AddressType = "shipping"
	AddressBilling  AddressType = "billing"
)

const (
	ShipmentDraft     = "draft"
	ShipmentBooked    = "booked"
	ShipmentInTransit = "in_transit"
	ShipmentDelivered = "delivered"
)

// OrderItem is frozen at confirmation. LineTotal == LineSubtotal + LineTaxTotal.
type OrderItem struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	ProductID    primitive.ObjectID `bson:"productId" json:"productId"`
	Title        string             `bson:"title" json:"title"`
	SKU          string             `bson:"sku" json:"sku"`
	UnitPrice    int64              `bson:"unitPrice" json:"unitPrice"`
	SalePrice    *int64             `bson:"salePrice,omitempty" json:"salePrice,omitempty"`
	Quantity     int                `bson:"quantity" json:"quantity"`
	LineSubtotal int64              `bson:"lineSubtotal" json:"lineSubtotal"`
	LineDiscount int64              `bson:"lineDiscount" json:"lineDiscount"`
	LineTaxTotal int64              `bson:"lineTaxTotal" json:"lineTaxTotal"`
	LineTotal    int64              `bson:"lineTotal" json:"lineTotal"`
}

type OrderTaxLine struct {
	Scope       TaxScope            `bson:"scope" json:"scope"`
	OrderItemID *primitive.ObjectID `bson:"orderItemId,omitempty" json:"orderItemId,omitempty"`
	Name        string              `bson:"name" json:"name"`
	Rate        string              `bson:"rate" json:"rate"`
	BaseAmount  int64               `bson:"baseAmount" json:"baseAmount"`
	TaxAmount   int64               `bson:"taxAmount" json:"taxAmount"`
}

type OrderAddress struct {
	Type    AddressType `bson:"type" json:"type"`
	Address `bson:",inline"`
}

type OrderShipment struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	Provider       string             `bson:"provider" json:"provider"`
	ServiceCode    string             `bson:"serviceCode" json:"serviceCode"`
	ServiceName    string             `bson:"serviceName" json:"serviceName"`
	ShippingTotal  int64              `bson:"shippingTotal" json:"shippingTotal"`
	Status         string             `bson:"status" json:"status"`
	TrackingNumber string             `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	Payload        string             `bson:"payload,omitempty" json:"-"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Order is the authoritative record of a confirmed purchase. Only status,
// shipment and cancel/refund fields change after creation.
type Order struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Status           OrderStatus         `bson:"status" json:"status"`
	Currency         string              `bson:"currency" json:"currency"`
	Subtotal         int64               `bson:"subtotal" json:"subtotal"`
	DiscountTotal    int64               `bson:"discountTotal" json:"discountTotal"`
	TaxTotal         int64               `bson:"taxTotal" json:"taxTotal"`
	ShippingTotal    int64               `bson:"shippingTotal" json:"shippingTotal"`
	GrandTotal       int64               `bson:"grandTotal" json:"grandTotal"`
	PricesIncludeTax bool                `bson:"pricesIncludeTax" json:"pricesIncludeTax"`
	DiscountCode     string              `bson:"discountCode,omitempty" json:"discountCode,omitempty"`
	DiscountID       *primitive.ObjectID `bson:"discountId,omitempty" json:"-"`
	CancelledAt      *time.Time          `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CancelReason     string              `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	RefundedAt       *time.Time          `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	RefundReason     string              `bson:"refundReason,omitempty" json:"refundReason,omitempty"`
	CartID           *primitive.ObjectID `bson:"cartId,omitempty" json:"cartId,omitempty"`
	UserID           *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	SessionID        string              `bson:"sessionId,omitempty" json:"-"`
	Items            []OrderItem         `bson:"items" json:"items"`
	TaxLines         []OrderTaxLine      `bson:"taxLines" json:"taxLines"`
	Addresses        []OrderAddress      `bson:"addresses" json:"addresses"`
	Shipments        []OrderShipment     `bson:"shipments" json:"shipments"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Reconciles reports whether the stored totals satisfy
// grand = subtotal - discount + tax + shipping.
func (o *Order) Reconciles() bool {
	return o.GrandTotal == o.Subtotal-o.DiscountTotal+o.TaxTotal+o.ShippingTotal
}

// Address returns the address of the given type, if any.
func (o *Order) Address(t AddressType) *OrderAddress {
	for i := range o.Addresses {
		if o.Addresses[i].Type == t {
			return &o.Addresses[i]
		}
	}
	return nil
}

// LatestShipment picks the most recently created shipment. Ties resolve to the
// later entry in the slice.
func (o *Order) LatestShipment() *OrderShipment {
	var latest *OrderShipment
	for i := range o.Shipments {
		s := &o.Shipments[i]
		if latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			latest = s
		}
	}
	return latest
}

// Shipment finds a shipment by id.
func (o *Order) Shipment(id primitive.ObjectID) *OrderShipment {
	for i := range o.Shipments {
		if o.Shipments[i].ID == id {
			return &o.Shipments[i]
		}
	}
	return nil
}

// StatusChange is written atomically together with a status transition.
type StatusChange struct {
	To           OrderStatus
	At           time.Time
	CancelReason string
	RefundReason string
}

// OrderFilter narrows admin and owner listings. Zero fields match everything.
type OrderFilter struct {
	Status OrderStatus
	UserID *primitive.ObjectID
}

// OwnedBy reports whether the signed-in user or the cart session placed the order.
func (o *Order) OwnedBy(userID *primitive.ObjectID, sessionID string) bool {
	if userID != nil && o.UserID != nil && *o.UserID == *userID {
		return true
	}
	return sessionID != "" && o.SessionID == sessionID
}
