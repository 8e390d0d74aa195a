package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/apperr"
	"storefront/internal/middleware"
	"storefront/internal/orders"
	"storefront/internal/payment"
)

const maxCallbackBody = 64 << 10

type initializePaymentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Name    string `json:"name"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
}

func InitializePayment(payments *payment.Service, manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payment/initialize"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
		defer cancel()

		var req initializePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		orderID, err := primitive.ObjectIDFromHex(req.OrderID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid orderId")
			return
		}

		userID, sessionID := middleware.UserID(c), middleware.SessionID(c)
		order, err := manager.Get(ctx, orderID)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		if !order.OwnedBy(userID, sessionID) {
			respondWithAppError(c, route, apperr.New(apperr.ErrOrderNotFound, "order %s not found", req.OrderID))
			return
		}

		buyer := payment.Buyer{ID: sessionID, Name: req.Name, Email: req.Email, Phone: req.Phone, IP: c.ClientIP()}
		if userID != nil {
			buyer.ID = userID.Hex()
		}
		started, err := payments.Initialize(ctx, orderID, buyer, sessionID)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, started)
	}
}

// PaymentCallback receives the provider's browser redirect. It is
// unauthenticated: the token is verified with the provider and the buyer is
// sent on to a signed result link.
func PaymentCallback(payments *payment.Service, errorPage string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payment/callback"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
		defer cancel()

		ctx, span := tracer.Start(ctx, "PaymentCallback")
		defer span.End()

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid body")
			return
		}
		form, err := url.ParseQuery(string(body))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid form")
			return
		}
		token := strings.TrimSpace(form.Get("token"))
		if token == "" {
			c.Redirect(http.StatusSeeOther, errorPage)
			return
		}

		res, err := payments.HandleCallback(ctx, token, string(body))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "callback failed")
			slog.Warn("[PAYMENT] callback rejected", "route", route, "err", err)
			c.Redirect(http.StatusSeeOther, errorPage)
			return
		}
		span.SetAttributes(
			attribute.String("order.id", res.OrderID),
			attribute.String("payment.status", string(res.Status)),
			attribute.Bool("payment.replayed", res.Replayed),
		)
		c.Redirect(http.StatusSeeOther, res.RedirectURL)
	}
}

func PaymentResult(payments *payment.Service, manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payment/result/:orderId"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		orderID, ok := paramObjectID(c, route, "orderId")
		if !ok {
			return
		}
		order, err := manager.Get(ctx, orderID)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}

		viewer := payment.Viewer{
			UserID:    middleware.UserID(c),
			SessionID: middleware.SessionID(c),
			Signature: c.Query("signature"),
		}
		if err := payments.Authorize(ctx, order, viewer); err != nil {
			respondWithAppError(c, route, err)
			return
		}

		status, found, err := payments.Result(ctx, orderID)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"orderId":       order.ID.Hex(),
			"orderStatus":   order.Status,
			"paymentStatus": status,
			"fresh":         found,
			"grandTotal":    order.GrandTotal,
			"currency":      order.Currency,
		})
	}
}
