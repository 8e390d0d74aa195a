// Package cart owns cart persistence, identity resolution and product
// snapshots.
package cart

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// Identity is who the cart belongs to. Either field may be empty, never both.
type Identity struct {
	UserID    *primitive.ObjectID
	SessionID string
}

func (id Identity) Empty() bool { return id.UserID == nil && id.SessionID == "" }

type Catalog interface {
	Product(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	Products(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error)
}

type Repository interface {
	FindActiveCartByUser(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	FindActiveCartBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	SaveCartItems(ctx context.Context, cart *models.Cart) error
	ClaimCart(ctx context.Context, cartID, userID primitive.ObjectID) (bool, error)
	TransitionCart(ctx context.Context, id primitive.ObjectID, from, to models.CartStatus, orderID *primitive.ObjectID) (bool, error)
}

type Service struct {
	carts    Repository
	catalog  Catalog
	currency string
	now      func() time.Time
	log      *slog.Logger
}

func NewService(carts Repository, catalog Catalog, currency string, now func() time.Time, log *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{carts: carts, catalog: catalog, currency: currency, now: now, log: log}
}

// Find returns the active cart for the identity or nil. It never creates one.
func (s *Service) Find(ctx context.Context, id Identity) (*models.Cart, error) {
	if id.UserID != nil {
		c, err := s.carts.FindActiveCartByUser(ctx, *id.UserID)
		if err != nil || c != nil {
			return c, err
		}
	}
	if id.SessionID == "" {
		return nil, nil
	}
	return s.carts.FindActiveCartBySession(ctx, id.SessionID)
}

// Resolve returns the active cart for the identity, creating it when absent.
// A signed-in user's own cart always wins; a guest cart from the same
// session is abandoned with its items. A guest cart is adopted by the user
// when they have none.
func (s *Service) Resolve(ctx context.Context, id Identity) (*models.Cart, error) {
	if id.Empty() {
		return nil, apperr.New(apperr.ErrForbidden, "no cart identity")
	}

	var userCart, guestCart *models.Cart
	var err error
	if id.UserID != nil {
		if userCart, err = s.carts.FindActiveCartByUser(ctx, *id.UserID); err != nil {
			return nil, err
		}
	}
	if id.SessionID != "" {
		if guestCart, err = s.carts.FindActiveCartBySession(ctx, id.SessionID); err != nil {
			return nil, err
		}
	}

	switch {
	case id.UserID == nil && guestCart != nil:
		return guestCart, nil
	case userCart != nil && guestCart != nil:
		if _, err := s.carts.TransitionCart(ctx, guestCart.ID, models.CartActive, models.CartAbandoned, nil); err != nil {
			return nil, err
		}
		s.log.Info("[CART] guest cart abandoned in favour of user cart",
			"guestCart", guestCart.ID.Hex(), "userCart", userCart.ID.Hex(), "droppedItems", len(guestCart.Items))
		return userCart, nil
	case userCart != nil:
		return userCart, nil
	case guestCart != nil:
		claimed, err := s.carts.ClaimCart(ctx, guestCart.ID, *id.UserID)
		if err != nil {
			return nil, err
		}
		if claimed {
			guestCart.UserID = id.UserID
			guestCart.SessionID = ""
			return guestCart, nil
		}
	}

	now := s.now()
	c := &models.Cart{
		UserID:    id.UserID,
		Status:    models.CartActive,
		Currency:  s.currency,
		Items:     []models.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if id.UserID == nil {
		c.SessionID = id.SessionID
	}
	if err := s.carts.CreateCart(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("[CART] cart created", "cart", c.ID.Hex())
	return c, nil
}

// AddItem adds qty of a product, merging with an existing row.
func (s *Service) AddItem(ctx context.Context, id Identity, productID primitive.ObjectID, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return nil, apperr.Validation(map[string]string{"quantity": "quantity must be greater than zero"})
	}
	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Purchasable() {
		return nil, apperr.New(apperr.ErrProductNotFound, "product %s not found", productID.Hex())
	}

	c, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	want := qty
	if i := c.Item(productID); i >= 0 {
		want += c.Items[i].Quantity
	}
	if want > product.Stock {
		return nil, outOfStock(product, want)
	}

	if i := c.Item(productID); i >= 0 {
		c.Items[i].Quantity = want
	} else {
		c.Items = append(c.Items, models.CartItem{ProductID: productID, Quantity: want})
	}
	return s.save(ctx, c)
}

// UpdateQty sets the quantity of a row. Zero removes it.
func (s *Service) UpdateQty(ctx context.Context, id Identity, productID primitive.ObjectID, qty int) (*models.Cart, error) {
	if qty < 0 {
		return nil, apperr.Validation(map[string]string{"quantity": "quantity must not be negative"})
	}
	if qty == 0 {
		return s.RemoveItem(ctx, id, productID)
	}

	c, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	i := c.Item(productID)
	if i < 0 {
		return nil, apperr.New(apperr.ErrProductNotFound, "product %s is not in the cart", productID.Hex())
	}
	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Purchasable() {
		return nil, apperr.New(apperr.ErrProductNotFound, "product %s not found", productID.Hex())
	}
	if qty > product.Stock {
		return nil, outOfStock(product, qty)
	}
	c.Items[i].Quantity = qty
	return s.save(ctx, c)
}

func (s *Service) RemoveItem(ctx context.Context, id Identity, productID primitive.ObjectID) (*models.Cart, error) {
	c, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if i := c.Item(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
	return s.save(ctx, c)
}

func (s *Service) Clear(ctx context.Context, id Identity) (*models.Cart, error) {
	c, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Items = []models.CartItem{}
	return s.save(ctx, c)
}

// Refresh re-reads the live products and rewrites every snapshot. Items whose
// product disappeared are dropped.
func (s *Service) Refresh(ctx context.Context, c *models.Cart) error {
	if len(c.Items) == 0 {
		return nil
	}
	ids := make([]primitive.ObjectID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	live, err := s.catalog.Products(ctx, ids)
	if err != nil {
		return err
	}

	now := s.now()
	items := c.Items[:0]
	for _, item := range c.Items {
		p, ok := live[item.ProductID]
		if !ok || !p.Purchasable() {
			s.log.Info("[CART] dropping unavailable product", "cart", c.ID.Hex(), "product", item.ProductID.Hex())
			continue
		}
		items = append(items, snapshot(p, item.Quantity, now))
	}
	c.Items = items
	return nil
}

func (s *Service) save(ctx context.Context, c *models.Cart) (*models.Cart, error) {
	if err := s.Refresh(ctx, c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.carts.SaveCartItems(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func snapshot(p models.Product, qty int, at time.Time) models.CartItem {
	return models.CartItem{
		ProductID:  p.ID,
		Quantity:   qty,
		UnitPrice:  p.Price,
		SalePrice:  p.SalePrice,
		Title:      p.Title,
		SKU:        p.SKU,
		Stock:      p.Stock,
		CategoryID: p.CategoryID,
		UpdatedAt:  at,
	}
}

func outOfStock(p *models.Product, requested int) error {
	err := apperr.New(apperr.ErrOutOfStock, "only %d of %s in stock", p.Stock, p.Title)
	err.Resource = p.ID.Hex()
	err.Details = map[string]any{"available": p.Stock, "requested": requested}
	return err
}
