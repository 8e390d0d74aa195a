package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the catalog read model consumed by the cart and checkout.
// Prices are in the currency's minor unit.
type Product struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title      string             `bson:"title" json:"title"`
	SKU        string             `bson:"sku" json:"sku"`
	Slug       string             `bson:"slug,omitempty" json:"slug,omitempty"`
	CategoryID string             `bson:"categoryId,omitempty" json:"categoryId,omitempty"`
	Price      int64              `bson:"price" json:"price"`
	SalePrice  *int64             `bson:"salePrice,omitempty" json:"salePrice,omitempty"`
	Stock      int                `bson:"stock" json:"stock"`
	IsActive   bool               `bson:"isActive" json:"isActive"`
	DeletedAt  *time.Time         `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// Purchasable reports whether the product can be put in a cart.
func (p Product) Purchasable() bool {
	return p.IsActive && p.DeletedAt == nil
}
