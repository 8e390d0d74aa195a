package memstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func (s *Store) FindActiveCartByUser(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	defer s.lock(ctx)()
	return s.findCart(func(c models.Cart) bool {
		return c.UserID != nil && *c.UserID == userID
	}), nil
}

func (s *Store) FindActiveCartBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	defer s.lock(ctx)()
	return s.findCart(func(c models.Cart) bool {
		return c.UserID == nil && c.SessionID == sessionID
	}), nil
}

func (s *Store) findCart(match func(models.Cart) bool) *models.Cart {
	for _, c := range s.d.carts {
		if c.Status == models.CartActive && c.DeletedAt == nil && match(c) {
			out := cloneCart(c)
			return &out
		}
	}
	return nil
}

func (s *Store) GetCart(ctx context.Context, id primitive.ObjectID) (*models.Cart, error) {
	defer s.lock(ctx)()
	c, ok := s.d.carts[id]
	if !ok || c.DeletedAt != nil {
		return nil, apperr.New(apperr.ErrCartNotFound, "cart %s not found", id.Hex())
	}
	out := cloneCart(c)
	return &out, nil
}

func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) error {
	defer s.lock(ctx)()
	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
	}
	s.d.carts[cart.ID] = cloneCart(*cart)
	return nil
}

// SaveCartItems replaces the items of an active cart.
func (s *Store) SaveCartItems(ctx context.Context, cart *models.Cart) error {
	defer s.lock(ctx)()
	stored, ok := s.d.carts[cart.ID]
	if !ok || stored.Status != models.CartActive || stored.DeletedAt != nil {
		return apperr.New(apperr.ErrAlreadyConfirmed, "cart %s is no longer active", cart.ID.Hex())
	}
	stored.Items = append([]models.CartItem(nil), cart.Items...)
	stored.UpdatedAt = cart.UpdatedAt
	s.d.carts[cart.ID] = stored
	return nil
}

// ClaimCart moves an active guest cart to a user.
func (s *Store) ClaimCart(ctx context.Context, cartID, userID primitive.ObjectID) (bool, error) {
	defer s.lock(ctx)()
	c, ok := s.d.carts[cartID]
	if !ok || c.Status != models.CartActive || c.UserID != nil {
		return false, nil
	}
	c.UserID = &userID
	c.SessionID = ""
	c.UpdatedAt = s.now()
	s.d.carts[cartID] = c
	return true, nil
}

// TransitionCart moves a cart between statuses only when it is currently in from.
func (s *Store) TransitionCart(ctx context.Context, id primitive.ObjectID, from, to models.CartStatus, orderID *primitive.ObjectID) (bool, error) {
	defer s.lock(ctx)()
	c, ok := s.d.carts[id]
	if !ok || c.Status != from || c.DeletedAt != nil {
		return false, nil
	}
	c.Status = to
	if orderID != nil {
		c.OrderID = orderID
	}
	c.UpdatedAt = s.now()
	s.d.carts[id] = c
	return true, nil
}

func (s *Store) GetCheckout(ctx context.Context, cartID primitive.ObjectID) (*models.Checkout, error) {
	defer s.lock(ctx)()
	for _, co := range s.d.checkouts {
		if co.CartID == cartID {
			out := cloneCheckout(co)
			return &out, nil
		}
	}
	return nil, nil
}

// SaveCheckout upserts the checkout keyed by its cart.
func (s *Store) SaveCheckout(ctx context.Context, co *models.Checkout) error {
	defer s.lock(ctx)()
	for id, existing := range s.d.checkouts {
		if existing.CartID == co.CartID {
			co.ID = id
		}
	}
	if co.ID.IsZero() {
		co.ID = primitive.NewObjectID()
	}
	s.d.checkouts[co.ID] = cloneCheckout(*co)
	return nil
}

// FindConvertedCart returns the most recently converted cart of the owner.
func (s *Store) FindConvertedCart(ctx context.Context, userID *primitive.ObjectID, sessionID string) (*models.Cart, error) {
	defer s.lock(ctx)()
	var latest *models.Cart
	for _, c := range s.d.carts {
		if c.Status != models.CartConverted || c.DeletedAt != nil {
			continue
		}
		owned := (userID != nil && c.UserID != nil && *c.UserID == *userID) ||
			(userID == nil && sessionID != "" && c.SessionID == sessionID)
		if !owned {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			out := cloneCart(c)
			latest = &out
		}
	}
	return latest, nil
}
