package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func (s *Store) InsertOrder(ctx context.Context, o *models.Order) error {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	_, err := s.col(colOrders).InsertOne(ctx, o)
	return err
}

func (s *Store) GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	o, err := findOne[models.Order](ctx, s.col(colOrders), bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.New(apperr.ErrOrderNotFound, "order %s not found", id.Hex())
	}
	return o, nil
}

// ListOrders returns one page of orders, newest first, and the total count.
func (s *Store) ListOrders(ctx context.Context, f models.OrderFilter, page, limit int64) ([]models.Order, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}

	total, err := s.col(colOrders).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	skip := (page - 1) * limit
	if page < 1 || limit < 1 || skip < 0 || skip >= total {
		return []models.Order{}, total, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cursor, err := s.col(colOrders).Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	out := []models.Order{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateOrderStatus applies change only when the order is in one of from.
func (s *Store) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, change models.StatusChange) (bool, error) {
	set := bson.M{"status": change.To, "updatedAt": change.At}
	switch change.To {
	case models.OrderCancelled:
		set["cancelledAt"] = change.At
		set["cancelReason"] = change.CancelReason
	case models.OrderRefunded:
		set["refundedAt"] = change.At
		set["refundReason"] = change.RefundReason
	}

	res, err := s.col(colOrders).UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.col(colOrders).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, apperr.New(apperr.ErrOrderNotFound, "order %s not found", id.Hex())
	}
	return false, nil
}

// UpdateShipment replaces the shipment with the same id.
func (s *Store) UpdateShipment(ctx context.Context, orderID primitive.ObjectID, sh models.OrderShipment) error {
	res, err := s.col(colOrders).UpdateOne(ctx,
		bson.M{"_id": orderID, "shipments._id": sh.ID},
		bson.M{"$set": bson.M{"shipments.$": sh, "updatedAt": sh.UpdatedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.ErrOrderNotFound, "shipment %s not found on order %s", sh.ID.Hex(), orderID.Hex())
	}
	return nil
}

func (s *Store) InsertPayment(ctx context.Context, p *models.Payment) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := s.col(colPayments).InsertOne(ctx, p)
	return err
}

func (s *Store) FindPaymentByConversation(ctx context.Context, conversationID string) (*models.Payment, error) {
	p, err := findOne[models.Payment](ctx, s.col(colPayments), bson.M{"conversationId": conversationID})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.ErrPaymentNotFound, "payment %s not found", conversationID)
	}
	return p, nil
}

// CompletePayment moves a pending payment to a terminal status.
func (s *Store) CompletePayment(ctx context.Context, id primitive.ObjectID, done models.PaymentCompletion) (bool, error) {
	res, err := s.col(colPayments).UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PaymentPending},
		bson.M{"$set": bson.M{
			"status":         done.Status,
			"transactionId":  done.TransactionID,
			"webhookPayload": done.WebhookPayload,
			"updatedAt":      done.At,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
