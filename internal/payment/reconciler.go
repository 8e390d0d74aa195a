package payment

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/events"
	"storefront/internal/kvstore"
	"storefront/internal/models"
)

type CallbackResult struct {
	OrderID     string
	Status      models.PaymentStatus
	RedirectURL string
	// Replayed is set when the payment had already been completed.
	Replayed bool
}

// HandleCallback settles a payment from the provider callback. It never
// touches the buyer's session: the outcome goes to the KV store under the
// order id and the caller redirects to a signed result link.
func (s *Service) HandleCallback(ctx context.Context, token, raw string) (CallbackResult, error) {
	res, err := s.Provider.Retrieve(ctx, token)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return CallbackResult{}, err
		}
		return CallbackResult{}, apperr.Wrap(apperr.ErrUpstream, err, "payment provider unavailable")
	}

	p, err := s.Payments.FindPaymentByConversation(ctx, res.ConversationID)
	if err != nil {
		return CallbackResult{}, err
	}

	status := res.Status
	if status == models.PaymentSuccess && res.PaidAmount != p.Amount {
		s.Log.Warn("[PAYMENT] paid amount mismatch", "payment", p.ID.Hex(), "expected", p.Amount, "paid", res.PaidAmount)
		status = models.PaymentFailure
	}

	var won, moved bool
	err = s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		moved = false
		won, err = s.Payments.CompletePayment(ctx, p.ID, models.PaymentCompletion{
			Status:         status,
			TransactionID:  res.TransactionID,
			WebhookPayload: raw,
			At:             s.Now(),
		})
		if err != nil || !won {
			return err
		}
		if status == models.PaymentSuccess {
			_, err = s.Orders.MarkPaid(ctx, p.OrderID)
		} else {
			_, err = s.Orders.MarkFailed(ctx, p.OrderID)
		}
		if errors.Is(err, apperr.ErrInvalidTransition) {
			// the order left pending_payment (for example an admin cancel);
			// the payment record still keeps the provider outcome
			s.Log.Warn("[PAYMENT] order no longer awaiting payment", "order", p.OrderID.Hex(), "err", err)
			return nil
		}
		moved = err == nil
		return err
	})
	if err != nil {
		return CallbackResult{}, err
	}

	orderID := p.OrderID.Hex()
	if won {
		s.Log.Info("[PAYMENT] payment completed", "order", orderID, "payment", p.ID.Hex(), "status", status)
		eventType := events.PaymentSucceeded
		if status != models.PaymentSuccess {
			eventType = events.PaymentFailed
		}
		events.Emit(ctx, s.Events, s.Log, events.Event{
			Type: eventType, OrderID: orderID, At: s.Now(),
			Data: map[string]any{"paymentId": p.ID.Hex(), "transactionId": res.TransactionID, "amount": p.Amount},
		})
	} else {
		current, err := s.Payments.FindPaymentByConversation(ctx, res.ConversationID)
		if err != nil {
			return CallbackResult{}, err
		}
		status = current.Status
		s.Log.Info("[PAYMENT] callback replay ignored", "order", orderID, "payment", p.ID.Hex(), "status", status)
	}

	// the cached result follows the order's status, not this callback
	outcome, settled := status, moved
	if !moved {
		outcome, settled, err = s.orderOutcome(ctx, p.OrderID)
		if err != nil {
			return CallbackResult{}, err
		}
	}
	if settled {
		if err := s.KV.Set(ctx, kvstore.PaymentResultKey(orderID), string(outcome), resultTTL); err != nil {
			s.Log.Error("[PAYMENT] result not cached", "order", orderID, "err", err)
		}
	} else {
		s.Log.Info("[PAYMENT] order not settled by a payment, result not cached", "order", orderID)
	}
	link, err := s.Links.ResultURL(orderID)
	if err != nil {
		return CallbackResult{}, err
	}
	return CallbackResult{OrderID: orderID, Status: status, RedirectURL: link, Replayed: !won}, nil
}

// orderOutcome maps the order's current status to the payment result a
// buyer should see. settled is false while no payment decided the order.
func (s *Service) orderOutcome(ctx context.Context, orderID primitive.ObjectID) (models.PaymentStatus, bool, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return "", false, err
	}
	switch o.Status {
	case models.OrderPaid, models.OrderShipped, models.OrderDelivered, models.OrderRefunded:
		return models.PaymentSuccess, true, nil
	case models.OrderFailed:
		return models.PaymentFailure, true, nil
	default:
		return "", false, nil
	}
}

// Viewer is who asks for a payment result.
type Viewer struct {
	UserID    *primitive.ObjectID
	SessionID string
	Signature string
}

// Authorize allows the result page for a valid signed link, the owner of the
// order, or the session holding the one-time pending order flag. The flag is
// consumed when used.
func (s *Service) Authorize(ctx context.Context, o *models.Order, v Viewer) error {
	orderID := o.ID.Hex()
	if v.Signature != "" {
		if err := s.Links.Verify(orderID, v.Signature); err == nil {
			return nil
		}
	}
	if o.OwnedBy(v.UserID, v.SessionID) {
		return nil
	}
	if v.SessionID != "" {
		key := kvstore.PendingOrderKey(v.SessionID)
		pending, ok, err := s.KV.Get(ctx, key)
		if err != nil {
			return err
		}
		if ok && pending == orderID {
			if _, _, err := s.KV.Pull(ctx, key); err != nil {
				return err
			}
			return nil
		}
	}
	return apperr.New(apperr.ErrForbidden, "not allowed to view order %s", orderID)
}

// Result pulls the cached outcome for the order. found is false when the
// entry expired or was already read.
func (s *Service) Result(ctx context.Context, orderID primitive.ObjectID) (status string, found bool, err error) {
	return s.KV.Pull(ctx, kvstore.PaymentResultKey(orderID.Hex()))
}
