package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CartStatus string

const (
	CartActive    CartStatus = "active"
	CartConverted CartStatus = "converted"
	CartAbandoned CartStatus = "abandoned"
)

// CartItem holds a product quantity together with the product data seen at
// the last write. Quantity is always positive; a zero quantity removes the item.
type CartItem struct {
	ProductID  primitive.ObjectID `bson:"productId" json:"productId"`
	Quantity   int                `bson:"quantity" json:"quantity"`
	UnitPrice  int64              `bson:"unitPrice" json:"unitPrice"`
	SalePrice  *int64             `bson:"salePrice,omitempty" json:"salePrice,omitempty"`
	Title      string             `bson:"title" json:"title"`
	SKU        string             `bson:"sku" json:"sku"`
	Stock      int                `bson:"stock" json:"stock"`
	CategoryID string             `bson:"categoryId,omitempty" json:"categoryId,omitempty"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Cart is owned by exactly one of UserID or SessionID.
type Cart struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	SessionID string              `bson:"sessionId,omitempty" json:"-"`
	Status    CartStatus          `bson:"status" json:"status"`
	Currency  string              `bson:"currency" json:"currency"`
	Items     []CartItem          `bson:"items" json:"items"`
	OrderID   *primitive.ObjectID `bson:"orderId,omitempty" json:"orderId,omitempty"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
	DeletedAt *time.Time          `bson:"deletedAt,omitempty" json:"-"`
}

// Item returns the index of the product in the cart, or -1.
func (c *Cart) Item(productID primitive.ObjectID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }
