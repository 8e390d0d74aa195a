// Package memstore keeps every collection in process memory. It backs local
// runs (STORE_DRIVER=memory) and the domain tests. All operations serialise
// on a single mutex; WithTransaction holds it for the whole callback and rolls
// the maps back when the callback fails.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

type data struct {
	products  map[primitive.ObjectID]models.Product
	carts     map[primitive.ObjectID]models.Cart
	checkouts map[primitive.ObjectID]models.Checkout
	discounts map[primitive.ObjectID]models.Discount
	orders    map[primitive.ObjectID]models.Order
	payments  map[primitive.ObjectID]models.Payment
}

// snapshot copies the maps. Stored values are never mutated in place, so a
// shallow copy is enough to restore them.
func (d *data) snapshot() data {
	return data{
		products:  maps.Clone(d.products),
		carts:     maps.Clone(d.carts),
		checkouts: maps.Clone(d.checkouts),
		discounts: maps.Clone(d.discounts),
		orders:    maps.Clone(d.orders),
		payments:  maps.Clone(d.payments),
	}
}

type Store struct {
	mu  sync.Mutex
	d   data
	now func() time.Time
}

func New() *Store {
	return &Store{
		d: data{
			products:  map[primitive.ObjectID]models.Product{},
			carts:     map[primitive.ObjectID]models.Cart{},
			checkouts: map[primitive.ObjectID]models.Checkout{},
			discounts: map[primitive.ObjectID]models.Discount{},
			orders:    map[primitive.ObjectID]models.Order{},
			payments:  map[primitive.ObjectID]models.Payment{},
		},
		now: time.Now,
	}
}

type txKey struct{}

// lock acquires the store mutex unless ctx already runs inside one of this
// store's transactions.
func (s *Store) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTransaction runs fn with the store locked. Any error returned by fn
// discards every write fn made.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.d.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.d = saved
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func cloneCart(c models.Cart) models.Cart {
	c.Items = append([]models.CartItem(nil), c.Items...)
	return c
}

func cloneCheckout(c models.Checkout) models.Checkout {
	c.QuotedRates = append([]models.ShippingRate(nil), c.QuotedRates...)
	return c
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	o.TaxLines = append([]models.OrderTaxLine(nil), o.TaxLines...)
	o.Addresses = append([]models.OrderAddress(nil), o.Addresses...)
	o.Shipments = append([]models.OrderShipment(nil), o.Shipments...)
	return o
}
