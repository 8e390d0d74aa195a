package checkout

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/events"
	"storefront/internal/models"
)

// Confirm turns the checkout into an order awaiting payment.
//
// Validation runs first without writing. The writes then happen in one
// transaction: cart active -> converted, guarded stock decrements, discount
// redemption, order insert and checkout -> confirmed. When any step fails the
// transaction is rolled back and the checkout stays in rate_selected. A cart
// that changed since shipping was quoted sends the checkout back to
// rates_pending instead.
func (o *Orchestrator) Confirm(ctx context.Context, id cart.Identity) (*models.Order, error) {
	c, err := o.Carts.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, o.alreadyConfirmedOrEmpty(ctx, id)
	}
	if c.IsEmpty() {
		return nil, apperr.New(apperr.ErrCartEmpty, "cart is empty")
	}

	co, err := o.Checkouts.GetCheckout(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case co == nil || co.State == models.CheckoutAddressPending || co.State == models.CheckoutRatesPending:
		state := models.CheckoutAddressPending
		if co != nil {
			state = co.State
		}
		return nil, apperr.New(apperr.ErrInvalidCheckoutState, "checkout is %s, select a shipping rate first", state)
	case co.State == models.CheckoutConfirmed:
		return nil, alreadyConfirmed(co.OrderID)
	}
	if co.ShippingAddress == nil || co.SelectedRate == nil {
		return nil, apperr.New(apperr.ErrInvalidCheckoutState, "checkout has no shipping selection")
	}
	if !o.quoteCurrent(c, co) {
		return nil, o.resetStaleQuote(ctx, c, co)
	}

	if err := o.checkStock(ctx, c); err != nil {
		return nil, err
	}

	p, err := o.price(ctx, c, co)
	if err != nil {
		return nil, err
	}

	order := o.buildOrder(c, co, p, id)
	err = o.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		converted, err := o.CartStore.TransitionCart(ctx, c.ID, models.CartActive, models.CartConverted, &order.ID)
		if err != nil {
			return err
		}
		if !converted {
			return alreadyConfirmed(nil)
		}

		for _, item := range c.Items {
			ok, err := o.Inventory.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return o.stockChanged(ctx, c)
			}
		}

		if err := o.Discounts.Redeem(ctx, p.discount.Discount); err != nil {
			return err
		}
		if err := o.Orders.InsertOrder(ctx, order); err != nil {
			return err
		}

		confirmed := *co
		confirmed.State = models.CheckoutConfirmed
		confirmed.OrderID = &order.ID
		confirmed.UpdatedAt = order.CreatedAt
		return o.Checkouts.SaveCheckout(ctx, &confirmed)
	})
	if err != nil {
		o.Log.Info("[CHECKOUT] confirm rejected", "cart", c.ID.Hex(), "err", err)
		return nil, err
	}

	o.Log.Info("[CHECKOUT] order confirmed", "order", order.ID.Hex(), "cart", c.ID.Hex(), "grandTotal", order.GrandTotal)
	events.Emit(ctx, o.Events, o.Log, events.Event{
		Type: events.OrderConfirmed, OrderID: order.ID.Hex(), At: order.CreatedAt,
		Data: map[string]any{"grandTotal": order.GrandTotal, "currency": order.Currency, "items": len(order.Items)},
	})
	return order, nil
}

func alreadyConfirmed(orderID *primitive.ObjectID) error {
	err := apperr.New(apperr.ErrAlreadyConfirmed, "cart was already turned into an order")
	if orderID != nil {
		err.Resource = orderID.Hex()
	}
	return err
}

// alreadyConfirmedOrEmpty tells a repeated confirm apart from a missing cart.
func (o *Orchestrator) alreadyConfirmedOrEmpty(ctx context.Context, id cart.Identity) error {
	converted, err := o.CartStore.FindConvertedCart(ctx, id.UserID, id.SessionID)
	if err != nil {
		return err
	}
	if converted != nil {
		return alreadyConfirmed(converted.OrderID)
	}
	return apperr.New(apperr.ErrCartEmpty, "cart is empty")
}

func (o *Orchestrator) checkStock(ctx context.Context, c *models.Cart) error {
	shortages, err := o.shortages(ctx, c)
	if err != nil {
		return err
	}
	if len(shortages) > 0 {
		return apperr.StockChanged(shortages)
	}
	return nil
}

func (o *Orchestrator) stockChanged(ctx context.Context, c *models.Cart) error {
	shortages, err := o.shortages(ctx, c)
	if err != nil {
		return err
	}
	if len(shortages) == 0 {
		// another writer took the stock between our read and the update
		shortages = make([]apperr.Shortage, 0, len(c.Items))
		for _, item := range c.Items {
			shortages = append(shortages, apperr.Shortage{ProductID: item.ProductID.Hex(), Title: item.Title, Requested: item.Quantity})
		}
	}
	return apperr.StockChanged(shortages)
}

func (o *Orchestrator) shortages(ctx context.Context, c *models.Cart) ([]apperr.Shortage, error) {
	ids := make([]primitive.ObjectID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	live, err := o.Inventory.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []apperr.Shortage
	for _, item := range c.Items {
		p, ok := live[item.ProductID]
		available := 0
		if ok && p.Purchasable() {
			available = p.Stock
		}
		if available < item.Quantity {
			out = append(out, apperr.Shortage{
				ProductID: item.ProductID.Hex(),
				Title:     item.Title,
				Available: available,
				Requested: item.Quantity,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (o *Orchestrator) buildOrder(c *models.Cart, co *models.Checkout, p priced, id cart.Identity) *models.Order {
	now := o.Now()
	order := &models.Order{
		ID:               primitive.NewObjectID(),
		Status:           models.OrderPendingPayment,
		Currency:         c.Currency,
		Subtotal:         p.totals.Subtotal,
		DiscountTotal:    p.totals.Discount,
		TaxTotal:         p.totals.Tax,
		ShippingTotal:    p.totals.Shipping,
		GrandTotal:       p.totals.Grand,
		PricesIncludeTax: o.Tax.PricesIncludeTax,
		CartID:           &c.ID,
		UserID:           id.UserID,
		SessionID:        id.SessionID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if d := p.discount.Discount; d != nil && p.totals.Discount > 0 {
		order.DiscountCode = co.DiscountCode
		order.DiscountID = &d.ID
	}

	itemIDs := make(map[string]primitive.ObjectID, len(c.Items))
	for i, item := range c.Items {
		line := p.totals.Lines[i]
		oi := models.OrderItem{
			ID:           primitive.NewObjectID(),
			ProductID:    item.ProductID,
			Title:        item.Title,
			SKU:          item.SKU,
			UnitPrice:    item.UnitPrice,
			SalePrice:    item.SalePrice,
			Quantity:     item.Quantity,
			LineSubtotal: line.Subtotal,
			LineDiscount: line.Discount,
			LineTaxTotal: line.Tax,
			LineTotal:    line.Total,
		}
		itemIDs[line.Key] = oi.ID
		order.Items = append(order.Items, oi)
	}

	for _, tl := range p.totals.TaxLines {
		line := models.OrderTaxLine{
			Scope:      models.TaxScopeOrder,
			Name:       tl.Name,
			Rate:       tl.Rate.String(),
			BaseAmount: tl.Base,
			TaxAmount:  tl.Amount,
		}
		if tl.LineKey != "" {
			itemID := itemIDs[tl.LineKey]
			line.Scope = models.TaxScopeItem
			line.OrderItemID = &itemID
		}
		order.TaxLines = append(order.TaxLines, line)
	}

	order.Addresses = []models.OrderAddress{{Type: models.AddressShipping, Address: *co.ShippingAddress}}
	if co.BillingAddress != nil {
		order.Addresses = append(order.Addresses, models.OrderAddress{Type: models.AddressBilling, Address: *co.BillingAddress})
	}

	rate := co.SelectedRate
	order.Shipments = []models.OrderShipment{{
		ID:            primitive.NewObjectID(),
		Provider:      rate.Provider,
		ServiceCode:   rate.ServiceCode,
		ServiceName:   rate.ServiceName,
		ShippingTotal: p.totals.Shipping,
		Status:        models.ShipmentDraft,
		Payload:       rate.Payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
	return order
}
