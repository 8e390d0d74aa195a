package memstore

import (
	"context"
	"slices"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func (s *Store) InsertOrder(ctx context.Context, o *models.Order) error {
	defer s.lock(ctx)()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	s.d.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	defer s.lock(ctx)()
	o, ok := s.d.orders[id]
	if !ok {
		return nil, apperr.New(apperr.ErrOrderNotFound, "order %s not found", id.Hex())
	}
	out := cloneOrder(o)
	return &out, nil
}

// ListOrders returns one page of orders, newest first, and the total count.
func (s *Store) ListOrders(ctx context.Context, f models.OrderFilter, page, limit int64) ([]models.Order, int64, error) {
	defer s.lock(ctx)()
	var all []models.Order
	for _, o := range s.d.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.UserID != nil && (o.UserID == nil || *o.UserID != *f.UserID) {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.Hex() > all[j].ID.Hex()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	start := (page - 1) * limit
	if page < 1 || limit < 1 || start < 0 || start >= total {
		return []models.Order{}, total, nil
	}
	end := min(start+limit, total)
	out := make([]models.Order, 0, end-start)
	for _, o := range all[start:end] {
		out = append(out, cloneOrder(o))
	}
	return out, total, nil
}

// UpdateOrderStatus applies change only when the order is in one of from.
func (s *Store) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, change models.StatusChange) (bool, error) {
	defer s.lock(ctx)()
	o, ok := s.d.orders[id]
	if !ok {
		return false, apperr.New(apperr.ErrOrderNotFound, "order %s not found", id.Hex())
	}
	if !slices.Contains(from, o.Status) {
		return false, nil
	}
	o = cloneOrder(o)
	o.Status = change.To
	o.UpdatedAt = change.At
	switch change.To {
	case models.OrderCancelled:
		o.CancelledAt = &change.At
		o.CancelReason = change.CancelReason
	case models.OrderRefunded:
		o.RefundedAt = &change.At
		o.RefundReason = change.RefundReason
	}
	s.d.orders[id] = o
	return true, nil
}

// UpdateShipment replaces the shipment with the same id.
func (s *Store) UpdateShipment(ctx context.Context, orderID primitive.ObjectID, sh models.OrderShipment) error {
	defer s.lock(ctx)()
	o, ok := s.d.orders[orderID]
	if !ok {
		return apperr.New(apperr.ErrOrderNotFound, "order %s not found", orderID.Hex())
	}
	o = cloneOrder(o)
	for i := range o.Shipments {
		if o.Shipments[i].ID == sh.ID {
			o.Shipments[i] = sh
			o.UpdatedAt = sh.UpdatedAt
			s.d.orders[orderID] = o
			return nil
		}
	}
	return apperr.New(apperr.ErrOrderNotFound, "shipment %s not found", sh.ID.Hex())
}

func (s *Store) InsertPayment(ctx context.Context, p *models.Payment) error {
	defer s.lock(ctx)()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.d.payments[p.ID] = *p
	return nil
}

func (s *Store) FindPaymentByConversation(ctx context.Context, conversationID string) (*models.Payment, error) {
	defer s.lock(ctx)()
	for _, p := range s.d.payments {
		if p.ConversationID == conversationID {
			return &p, nil
		}
	}
	return nil, apperr.New(apperr.ErrPaymentNotFound, "payment %s not found", conversationID)
}

// CompletePayment moves a pending payment to a terminal status.
func (s *Store) CompletePayment(ctx context.Context, id primitive.ObjectID, done models.PaymentCompletion) (bool, error) {
	defer s.lock(ctx)()
	p, ok := s.d.payments[id]
	if !ok {
		return false, apperr.New(apperr.ErrPaymentNotFound, "payment %s not found", id.Hex())
	}
	if p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = done.Status
	p.TransactionID = done.TransactionID
	p.WebhookPayload = done.WebhookPayload
	p.UpdatedAt = done.At
	s.d.payments[id] = p
	return true, nil
}
