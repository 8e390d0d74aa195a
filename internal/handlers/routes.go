package handlers

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/middleware"
	"storefront/internal/orders"
	"storefront/internal/payment"
)

type Services struct {
	Carts    *cart.Service
	Checkout *checkout.Orchestrator
	Payments *payment.Service
	Orders   *orders.Manager
	Store    Pinger
	Log      *slog.Logger

	Currency         string
	JWTSecret        string
	SecureCookies    bool
	SessionTTL       time.Duration
	PaymentErrorPage string
}

// Register mounts every route on r.
func Register(r *gin.Engine, s Services) {
	binding.EnableDecoderDisallowUnknownFields = true

	r.GET("/healthz", Healthz(s.Store))

	// the provider posts here without the buyer's cookies
	r.POST("/payment/callback", PaymentCallback(s.Payments, s.PaymentErrorPage))

	buyer := r.Group("/")
	buyer.Use(middleware.CartSession(s.SecureCookies, s.SessionTTL), middleware.OptionalUserAuth(s.JWTSecret, s.Log))
	{
		buyer.GET("/cart", GetCart(s.Carts, s.Currency))
		buyer.POST("/cart/items", AddCartItem(s.Carts))
		buyer.PUT("/cart/items/:productId", UpdateCartItem(s.Carts))
		buyer.DELETE("/cart/items/:productId", RemoveCartItem(s.Carts))
		buyer.POST("/cart/clear", ClearCart(s.Carts))

		buyer.GET("/checkout", GetCheckout(s.Checkout))
		buyer.GET("/checkout/address", GetCheckoutAddress(s.Checkout))
		buyer.POST("/checkout/address", SetCheckoutAddress(s.Checkout))
		buyer.POST("/checkout/shipping/rates", QuoteShippingRates(s.Checkout))
		buyer.POST("/checkout/shipping/select", SelectShippingRate(s.Checkout))
		buyer.POST("/checkout/discount", ApplyDiscount(s.Checkout))
		buyer.DELETE("/checkout/discount", RemoveDiscount(s.Checkout))
		buyer.POST("/checkout/confirm", ConfirmCheckout(s.Checkout))

		buyer.POST("/payment/initialize", InitializePayment(s.Payments, s.Orders))
		buyer.GET("/payment/result/:orderId", PaymentResult(s.Payments, s.Orders))

		buyer.GET("/orders/:id", GetMyOrder(s.Orders))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(s.JWTSecret))
	{
		admin.GET("/orders", ListOrders(s.Orders))
		admin.GET("/orders/:id", GetOrder(s.Orders))
		admin.POST("/orders/:id/cancel", CancelOrder(s.Orders))
		admin.POST("/orders/:id/refund", RefundOrder(s.Orders))
		admin.PUT("/orders/:id/shipments/:shipmentId", UpdateShipment(s.Orders))
	}
}
