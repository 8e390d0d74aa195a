package memstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// PutProduct inserts or replaces a product and returns it with its id.
func (s *Store) PutProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.d.products[p.ID] = p
	return p
}

func (s *Store) Product(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	defer s.lock(ctx)()
	p, ok := s.d.products[id]
	if !ok || p.DeletedAt != nil {
		return nil, apperr.New(apperr.ErrProductNotFound, "product %s not found", id.Hex())
	}
	return &p, nil
}

// Products returns the live products among ids. Missing ids are left out.
func (s *Store) Products(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	defer s.lock(ctx)()
	out := make(map[primitive.ObjectID]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.d.products[id]; ok && p.DeletedAt == nil {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	defer s.lock(ctx)()
	p, ok := s.d.products[id]
	if !ok || p.DeletedAt != nil || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	s.d.products[id] = p
	return true, nil
}

// PutDiscount inserts or replaces a discount and returns it with its id.
func (s *Store) PutDiscount(d models.Discount) models.Discount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	s.d.discounts[d.ID] = d
	return d
}

func (s *Store) Discount(id primitive.ObjectID) (models.Discount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.d.discounts[id]
	return d, ok
}

func (s *Store) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	defer s.lock(ctx)()
	for _, d := range s.d.discounts {
		if d.Code == code && d.DeletedAt == nil {
			return &d, nil
		}
	}
	return nil, apperr.New(apperr.ErrDiscountNotFound, "discount %s not found", code)
}

func (s *Store) RedeemDiscount(ctx context.Context, id primitive.ObjectID) (bool, error) {
	defer s.lock(ctx)()
	d, ok := s.d.discounts[id]
	if !ok || d.DeletedAt != nil {
		return false, nil
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return false, nil
	}
	d.UsageCount++
	s.d.discounts[id] = d
	return true, nil
}
