// Package orders drives an order through its post-confirmation lifecycle.
package orders

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/events"
	"storefront/internal/models"
)

type Repository interface {
	GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	ListOrders(ctx context.Context, f models.OrderFilter, page, limit int64) ([]models.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, change models.StatusChange) (bool, error)
	UpdateShipment(ctx context.Context, orderID primitive.ObjectID, sh models.OrderShipment) error
}

type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// allowedFrom lists, per target status, the statuses it may be entered from.
var allowedFrom = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPendingPayment: {models.OrderDraft},
	models.OrderPaid:           {models.OrderPendingPayment},
	models.OrderFailed:         {models.OrderPendingPayment},
	models.OrderCancelled:      {models.OrderPendingPayment, models.OrderFailed},
	models.OrderRefunded:       {models.OrderPaid, models.OrderShipped, models.OrderDelivered},
	models.OrderShipped:        {models.OrderPaid},
	models.OrderDelivered:      {models.OrderPaid, models.OrderShipped},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to models.OrderStatus) bool {
	return slices.Contains(allowedFrom[to], from)
}

type Manager struct {
	repo Repository
	tx   Transactor
	pub  events.Publisher
	now  func() time.Time
	log  *slog.Logger
}

func NewManager(repo Repository, tx Transactor, pub events.Publisher, now func() time.Time, log *slog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{repo: repo, tx: tx, pub: pub, now: now, log: log}
}

func (m *Manager) Get(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return m.repo.GetOrder(ctx, id)
}

func (m *Manager) List(ctx context.Context, f models.OrderFilter, page, limit int64) ([]models.Order, int64, error) {
	return m.repo.ListOrders(ctx, f, page, limit)
}

// MarkPaid records a successful authorization.
func (m *Manager) MarkPaid(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return m.transition(ctx, id, models.StatusChange{To: models.OrderPaid, At: m.now()})
}

// MarkFailed records a declined or abandoned authorization.
func (m *Manager) MarkFailed(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return m.transition(ctx, id, models.StatusChange{To: models.OrderFailed, At: m.now()})
}

func (m *Manager) Cancel(ctx context.Context, id primitive.ObjectID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation(map[string]string{"reason": "reason is required"})
	}
	o, err := m.transition(ctx, id, models.StatusChange{To: models.OrderCancelled, At: m.now(), CancelReason: reason})
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, m.pub, m.log, events.Event{
		Type: events.OrderCancelled, OrderID: o.ID.Hex(), At: *o.CancelledAt,
		Data: map[string]any{"reason": reason},
	})
	return o, nil
}

func (m *Manager) Refund(ctx context.Context, id primitive.ObjectID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation(map[string]string{"reason": "reason is required"})
	}
	o, err := m.transition(ctx, id, models.StatusChange{To: models.OrderRefunded, At: m.now(), RefundReason: reason})
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, m.pub, m.log, events.Event{
		Type: events.OrderRefunded, OrderID: o.ID.Hex(), At: *o.RefundedAt,
		Data: map[string]any{"reason": reason, "amount": o.GrandTotal},
	})
	return o, nil
}

func (m *Manager) transition(ctx context.Context, id primitive.ObjectID, change models.StatusChange) (*models.Order, error) {
	ok, err := m.repo.UpdateOrderStatus(ctx, id, allowedFrom[change.To], change)
	if err != nil {
		return nil, err
	}
	o, err := m.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidTransition(id.Hex(), string(o.Status), string(change.To))
	}
	m.log.Info("[ORDER] status changed", "order", id.Hex(), "status", change.To)
	return o, nil
}

type ShipmentUpdate struct {
	Status         string
	TrackingNumber string
	Payload        string
}

// UpdateShipment stores a carrier status on a shipment. in_transit moves a
// paid order to shipped and delivered moves a paid or shipped order to
// delivered; other statuses are stored without touching the order.
func (m *Manager) UpdateShipment(ctx context.Context, orderID, shipmentID primitive.ObjectID, u ShipmentUpdate) (*models.Order, error) {
	status := strings.TrimSpace(u.Status)
	if status == "" {
		return nil, apperr.Validation(map[string]string{"status": "status is required"})
	}

	var updated *models.Order
	err := m.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := m.repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		sh := o.Shipment(shipmentID)
		if sh == nil {
			return apperr.New(apperr.ErrOrderNotFound, "shipment %s not found on order %s", shipmentID.Hex(), orderID.Hex())
		}

		next := *sh
		next.Status = status
		if u.TrackingNumber != "" {
			next.TrackingNumber = u.TrackingNumber
		}
		if u.Payload != "" {
			next.Payload = u.Payload
		}
		next.UpdatedAt = m.now()
		if err := m.repo.UpdateShipment(ctx, orderID, next); err != nil {
			return err
		}

		var target models.OrderStatus
		switch status {
		case models.ShipmentInTransit:
			target = models.OrderShipped
		case models.ShipmentDelivered:
			target = models.OrderDelivered
		}
		if target != "" && CanTransition(o.Status, target) {
			if _, err := m.repo.UpdateOrderStatus(ctx, orderID, allowedFrom[target], models.StatusChange{To: target, At: next.UpdatedAt}); err != nil {
				return err
			}
		}

		updated, err = m.repo.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("[ORDER] shipment updated", "order", orderID.Hex(), "shipment", shipmentID.Hex(), "status", status)
	events.Emit(ctx, m.pub, m.log, events.Event{
		Type: events.ShipmentUpdated, OrderID: orderID.Hex(), At: m.now(),
		Data: map[string]any{"shipmentId": shipmentID.Hex(), "status": status, "orderStatus": updated.Status},
	})
	return updated, nil
}
