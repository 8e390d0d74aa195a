// Package checkout walks a cart through address, shipping rate and discount
// selection and turns it into an order.
//
// States move address_pending -> rates_pending -> rate_selected -> confirmed.
// Every read and mutation reprices the cart through the pricing engine.
package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/discount"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/shipping"
)

type Repository interface {
	GetCheckout(ctx context.Context, cartID primitive.ObjectID) (*models.Checkout, error)
	SaveCheckout(ctx context.Context, co *models.Checkout) error
}

type Carts interface {
	Find(ctx context.Context, id cart.Identity) (*models.Cart, error)
}

type CartStore interface {
	TransitionCart(ctx context.Context, id primitive.ObjectID, from, to models.CartStatus, orderID *primitive.ObjectID) (bool, error)
	FindConvertedCart(ctx context.Context, userID *primitive.ObjectID, sessionID string) (*models.Cart, error)
}

type Inventory interface {
	Products(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error)
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error)
}

type Discounts interface {
	Apply(ctx context.Context, code string, subtotal int64) (discount.Applied, error)
	Redeem(ctx context.Context, d *models.Discount) error
}

type OrderWriter interface {
	InsertOrder(ctx context.Context, o *models.Order) error
}

type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Deps struct {
	Carts        Carts
	CartStore    CartStore
	Checkouts    Repository
	Inventory    Inventory
	Discounts    Discounts
	Orders       OrderWriter
	Shipping     shipping.Gateway
	Tx           Transactor
	Events       events.Publisher
	Tax          pricing.TaxConfig
	GramsPerUnit int
	Now          func() time.Time
	Log          *slog.Logger
}

type Orchestrator struct {
	Deps
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Orchestrator{Deps: d}
}

// Summary is the checkout view returned by every operation.
type Summary struct {
	CartID          string                `json:"cartId,omitempty"`
	State           models.CheckoutState  `json:"state"`
	Currency        string                `json:"currency,omitempty"`
	Items           []models.CartItem     `json:"items"`
	ShippingAddress *models.Address       `json:"shippingAddress,omitempty"`
	BillingAddress  *models.Address       `json:"billingAddress,omitempty"`
	QuotedRates     []models.ShippingRate `json:"quotedRates,omitempty"`
	SelectedRate    *models.ShippingRate  `json:"selectedRate,omitempty"`
	DiscountCode    string                `json:"discountCode,omitempty"`
	DiscountNotice  string                `json:"discountNotice,omitempty"`
	ShippingNotice  string                `json:"shippingNotice,omitempty"`
	Totals          pricing.Totals        `json:"totals"`
}

type priced struct {
	totals   pricing.Totals
	discount discount.Applied
}

// price runs the pricing engine over the cart snapshot with the checkout's
// discount and selected rate.
func (o *Orchestrator) price(ctx context.Context, c *models.Cart, co *models.Checkout) (priced, error) {
	in := pricing.Input{Lines: make([]pricing.Line, 0, len(c.Items))}
	for _, item := range c.Items {
		in.Lines = append(in.Lines, pricing.Line{
			Key:        item.ProductID.Hex(),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			SalePrice:  item.SalePrice,
			CategoryID: item.CategoryID,
		})
	}

	var applied discount.Applied
	if co.DiscountCode != "" {
		var err error
		applied, err = o.Discounts.Apply(ctx, co.DiscountCode, grossSubtotal(c))
		if err != nil {
			return priced{}, err
		}
		in.Discount = applied.Amount
	}
	if co.SelectedRate != nil {
		amount := co.SelectedRate.Amount
		in.Shipping = &amount
	}

	totals := pricing.Compute(o.Tax, in)
	if err := totals.Check(); err != nil {
		o.Log.Error("[CHECKOUT] totals do not reconcile", "cart", c.ID.Hex(), "err", err)
		return priced{}, err
	}
	return priced{totals: totals, discount: applied}, nil
}

func (o *Orchestrator) parcel(c *models.Cart) shipping.Parcel {
	return shipping.NewParcel(c.Items, o.GramsPerUnit, grossSubtotal(c))
}

// quoteKey identifies what a set of rates was quoted for: the destination and
// the parcel contents. Any cart change produces a different key.
func (o *Orchestrator) quoteKey(to models.Address, c *models.Cart) string {
	p := o.parcel(c)
	lines := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, fmt.Sprintf("%s:%d", item.ProductID.Hex(), item.Quantity))
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d", to.Fingerprint(), p.Items, p.WeightGrams, p.Value)
	for _, l := range lines {
		fmt.Fprintf(h, "|%s", l)
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// quoteCurrent reports whether the stored quote still matches the address
// and the cart.
func (o *Orchestrator) quoteCurrent(c *models.Cart, co *models.Checkout) bool {
	return co.ShippingAddress != nil && co.QuotedFor != "" && co.QuotedFor == o.quoteKey(*co.ShippingAddress, c)
}

// dropQuote forgets quoted rates and the selection. The address stays.
func dropQuote(co *models.Checkout) {
	co.QuotedFor = ""
	co.QuotedRates = nil
	co.SelectedRate = nil
	if co.ShippingAddress != nil {
		co.State = models.CheckoutRatesPending
	} else {
		co.State = models.CheckoutAddressPending
	}
}

// resetStaleQuote clears a quote that no longer matches the cart and returns
// the error telling the buyer to quote again.
func (o *Orchestrator) resetStaleQuote(ctx context.Context, c *models.Cart, co *models.Checkout) error {
	dropQuote(co)
	co.UpdatedAt = o.Now()
	if err := o.Checkouts.SaveCheckout(ctx, co); err != nil {
		return err
	}
	o.Log.Info("[CHECKOUT] shipping quote reset after cart change", "cart", c.ID.Hex())
	return apperr.New(apperr.ErrShippingQuoteStale, "cart changed since shipping was quoted, quote rates again")
}

func grossSubtotal(c *models.Cart) int64 {
	var gross int64
	for _, item := range c.Items {
		gross += pricing.EffectiveUnitPrice(item.UnitPrice, item.SalePrice) * int64(item.Quantity)
	}
	return gross
}

// load returns the active cart and its checkout. The checkout is created in
// memory when missing. requireItems rejects absent or empty carts.
func (o *Orchestrator) load(ctx context.Context, id cart.Identity, requireItems bool) (*models.Cart, *models.Checkout, error) {
	c, err := o.Carts.Find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil || c.IsEmpty() {
		if requireItems {
			return nil, nil, apperr.New(apperr.ErrCartEmpty, "cart is empty")
		}
		return c, nil, nil
	}

	co, err := o.Checkouts.GetCheckout(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	if co == nil {
		co = &models.Checkout{CartID: c.ID, State: models.CheckoutAddressPending}
	}
	return c, co, nil
}

func (o *Orchestrator) summarize(ctx context.Context, c *models.Cart, co *models.Checkout) (Summary, error) {
	var shippingNotice string
	if co.State != models.CheckoutConfirmed && len(co.QuotedRates) > 0 && !o.quoteCurrent(c, co) {
		// the cart changed after quoting; show it as needing new rates
		view := *co
		dropQuote(&view)
		co = &view
		shippingNotice = "cart changed since shipping was quoted, quote rates again"
	}

	s := Summary{
		CartID:          c.ID.Hex(),
		State:           co.State,
		Currency:        c.Currency,
		Items:           c.Items,
		ShippingAddress: co.ShippingAddress,
		BillingAddress:  co.BillingAddress,
		QuotedRates:     co.QuotedRates,
		SelectedRate:    co.SelectedRate,
		DiscountCode:    co.DiscountCode,
		ShippingNotice:  shippingNotice,
	}

	p, err := o.price(ctx, c, co)
	var appErr *apperr.Error
	if err != nil && co.DiscountCode != "" && errors.As(err, &appErr) && appErr.Kind != apperr.KindInvariant {
		// the stored code stopped applying; show totals without it
		s.DiscountNotice = appErr.Message
		withoutCode := *co
		withoutCode.DiscountCode = ""
		p, err = o.price(ctx, c, &withoutCode)
	}
	if err != nil {
		return Summary{}, err
	}
	s.Totals = p.totals
	return s, nil
}

func (o *Orchestrator) save(ctx context.Context, c *models.Cart, co *models.Checkout) (Summary, error) {
	co.UpdatedAt = o.Now()
	if err := o.Checkouts.SaveCheckout(ctx, co); err != nil {
		return Summary{}, err
	}
	return o.summarize(ctx, c, co)
}

// Summary is the read-only view of the current checkout.
func (o *Orchestrator) Summary(ctx context.Context, id cart.Identity) (Summary, error) {
	c, co, err := o.load(ctx, id, false)
	if err != nil {
		return Summary{}, err
	}
	if co == nil {
		s := Summary{State: models.CheckoutAddressPending, Items: []models.CartItem{}}
		if c != nil {
			s.CartID = c.ID.Hex()
			s.Currency = c.Currency
		}
		return s, nil
	}
	return o.summarize(ctx, c, co)
}

// SetAddress stores the destination. Any earlier quote or selection is
// dropped because rates depend on the address.
func (o *Orchestrator) SetAddress(ctx context.Context, id cart.Identity, ship models.Address, bill *models.Address) (Summary, error) {
	ship = ship.Normalized()
	fields := validateAddress("shippingAddress", ship)
	if bill != nil {
		b := bill.Normalized()
		bill = &b
		for k, v := range validateAddress("billingAddress", b) {
			if fields == nil {
				fields = map[string]string{}
			}
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return Summary{}, apperr.Validation(fields)
	}

	c, co, err := o.load(ctx, id, true)
	if err != nil {
		return Summary{}, err
	}
	if err := notConfirmed(co); err != nil {
		return Summary{}, err
	}

	co.ShippingAddress = &ship
	co.BillingAddress = bill
	dropQuote(co)
	return o.save(ctx, c, co)
}

// QuoteRates asks the shipping gateway for rates to the stored address.
func (o *Orchestrator) QuoteRates(ctx context.Context, id cart.Identity) (Summary, error) {
	c, co, err := o.load(ctx, id, true)
	if err != nil {
		return Summary{}, err
	}
	if err := notConfirmed(co); err != nil {
		return Summary{}, err
	}
	if co.ShippingAddress == nil {
		return Summary{}, apperr.New(apperr.ErrAddressRequired, "set a shipping address first")
	}

	rates, err := o.Shipping.Quote(ctx, *co.ShippingAddress, o.parcel(c))
	if err != nil {
		return Summary{}, err
	}
	if len(rates) == 0 {
		return Summary{}, apperr.New(apperr.ErrNoShippingRates, "no shipping rates for %s", co.ShippingAddress.Country)
	}

	co.QuotedRates = rates
	co.QuotedFor = o.quoteKey(*co.ShippingAddress, c)
	co.SelectedRate = nil
	co.State = models.CheckoutRatesPending
	o.Log.Info("[CHECKOUT] rates quoted", "cart", c.ID.Hex(), "rates", len(rates))
	return o.save(ctx, c, co)
}

// SelectShipping chooses one of the rates quoted for the current address.
func (o *Orchestrator) SelectShipping(ctx context.Context, id cart.Identity, serviceCode string) (Summary, error) {
	c, co, err := o.load(ctx, id, true)
	if err != nil {
		return Summary{}, err
	}
	if err := notConfirmed(co); err != nil {
		return Summary{}, err
	}
	if co.ShippingAddress == nil {
		return Summary{}, apperr.New(apperr.ErrAddressRequired, "set a shipping address first")
	}
	if co.QuotedFor == "" || len(co.QuotedRates) == 0 {
		return Summary{}, apperr.New(apperr.ErrRateNotOffered, "rates were not quoted for the current address")
	}
	if !o.quoteCurrent(c, co) {
		return Summary{}, o.resetStaleQuote(ctx, c, co)
	}

	rate, err := shipping.Select(co.QuotedRates, serviceCode)
	if err != nil {
		return Summary{}, err
	}
	co.SelectedRate = &rate
	co.State = models.CheckoutRateSelected
	return o.save(ctx, c, co)
}

// ApplyDiscount validates the code against the current subtotal and keeps it.
func (o *Orchestrator) ApplyDiscount(ctx context.Context, id cart.Identity, code string) (Summary, error) {
	code = discount.NormalizeCode(code)
	if code == "" {
		return Summary{}, apperr.Validation(map[string]string{"code": "code is required"})
	}
	c, co, err := o.load(ctx, id, true)
	if err != nil {
		return Summary{}, err
	}
	if err := notConfirmed(co); err != nil {
		return Summary{}, err
	}
	if _, err := o.Discounts.Apply(ctx, code, grossSubtotal(c)); err != nil {
		return Summary{}, err
	}
	co.DiscountCode = code
	return o.save(ctx, c, co)
}

func (o *Orchestrator) RemoveDiscount(ctx context.Context, id cart.Identity) (Summary, error) {
	c, co, err := o.load(ctx, id, true)
	if err != nil {
		return Summary{}, err
	}
	if err := notConfirmed(co); err != nil {
		return Summary{}, err
	}
	co.DiscountCode = ""
	return o.save(ctx, c, co)
}

func notConfirmed(co *models.Checkout) error {
	if co.State == models.CheckoutConfirmed {
		return apperr.New(apperr.ErrAlreadyConfirmed, "checkout already confirmed")
	}
	return nil
}
