package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/events"
	"storefront/internal/kvstore"
	"storefront/internal/models"
)

const resultTTL = 10 * time.Minute

type Repository interface {
	InsertPayment(ctx context.Context, p *models.Payment) error
	FindPaymentByConversation(ctx context.Context, conversationID string) (*models.Payment, error)
	CompletePayment(ctx context.Context, id primitive.ObjectID, done models.PaymentCompletion) (bool, error)
}

type Orders interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	MarkFailed(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
}

type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ResultLinker interface {
	ResultURL(orderID string) (string, error)
	Verify(orderID, signature string) error
}

type Deps struct {
	Provider    Provider
	Payments    Repository
	Orders      Orders
	Tx          Transactor
	KV          kvstore.Store
	Links       ResultLinker
	Events      events.Publisher
	CallbackURL string
	Now         func() time.Time
	Log         *slog.Logger
}

type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{Deps: d}
}

type Initialized struct {
	PaymentID   string `json:"paymentId"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	InlineForm  string `json:"inlineForm,omitempty"`
}

// Initialize opens a hosted payment session for an order awaiting payment.
// sessionID, when set, gets a one-time flag that lets the browser read the
// result after coming back from the provider.
func (s *Service) Initialize(ctx context.Context, orderID primitive.ObjectID, buyer Buyer, sessionID string) (Initialized, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return Initialized{}, err
	}
	if o.Status != models.OrderPendingPayment {
		return Initialized{}, apperr.New(apperr.ErrInvalidCheckoutState, "order %s is %s, not awaiting payment", o.ID.Hex(), o.Status)
	}

	req := InitRequest{
		ConversationID: uuid.NewString(),
		OrderID:        o.ID.Hex(),
		Amount:         o.GrandTotal,
		Currency:       o.Currency,
		CallbackURL:    s.CallbackURL,
		Buyer:          buyer,
	}
	if a := o.Address(models.AddressShipping); a != nil {
		req.ShippingAddress = a.Address
		req.BillingAddress = a.Address
		if req.Buyer.Name == "" {
			req.Buyer.Name = a.FullName
		}
		if req.Buyer.Email == "" {
			req.Buyer.Email = a.Email
		}
	}
	if a := o.Address(models.AddressBilling); a != nil {
		req.BillingAddress = a.Address
	}
	for _, item := range o.Items {
		req.Items = append(req.Items, BasketItem{ID: item.ProductID.Hex(), Name: item.Title, Amount: item.LineTotal})
	}

	res, err := s.Provider.Initialize(ctx, req)
	if err != nil {
		s.Log.Error("[PAYMENT] initialize failed", "order", o.ID.Hex(), "err", err)
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return Initialized{}, err
		}
		return Initialized{}, apperr.Wrap(apperr.ErrUpstream, err, "payment provider unavailable")
	}

	now := s.Now()
	p := &models.Payment{
		OrderID:        o.ID,
		Provider:       s.Provider.Name(),
		Status:         models.PaymentPending,
		Amount:         o.GrandTotal,
		Currency:       o.Currency,
		ConversationID: req.ConversationID,
		Token:          res.Token,
		RawRequest:     res.RawRequest,
		RawResponse:    res.RawResponse,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Payments.InsertPayment(ctx, p); err != nil {
		return Initialized{}, err
	}
	if sessionID != "" {
		if err := s.KV.Set(ctx, kvstore.PendingOrderKey(sessionID), o.ID.Hex(), resultTTL); err != nil {
			s.Log.Warn("[PAYMENT] pending order flag not stored", "order", o.ID.Hex(), "err", err)
		}
	}

	s.Log.Info("[PAYMENT] session initialized", "order", o.ID.Hex(), "payment", p.ID.Hex(), "conversation", p.ConversationID)
	return Initialized{PaymentID: p.ID.Hex(), RedirectURL: res.RedirectURL, InlineForm: res.InlineForm}, nil
}
