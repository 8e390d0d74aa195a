package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/checkout"
	"storefront/internal/models"
)

var tracer trace.Tracer = otel.Tracer("storefront-http")

type addressRequest struct {
	ShippingAddress *models.Address `json:"shippingAddress" binding:"required"`
	BillingAddress  *models.Address `json:"billingAddress"`
}

type selectShippingRequest struct {
	ServiceCode string `json:"serviceCode" binding:"required"`
}

type discountRequest struct {
	Code string `json:"code" binding:"required"`
}

func respondSummary(c *gin.Context, route string, s checkout.Summary, err error) {
	if err != nil {
		respondWithAppError(c, route, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func GetCheckout(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /checkout"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		s, err := o.Summary(ctx, identity(c))
		respondSummary(c, route, s, err)
	}
}

func GetCheckoutAddress(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /checkout/address"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		s, err := o.Summary(ctx, identity(c))
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"state":           s.State,
			"shippingAddress": s.ShippingAddress,
			"billingAddress":  s.BillingAddress,
		})
	}
}

func SetCheckoutAddress(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/address"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var req addressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		s, err := o.SetAddress(ctx, identity(c), *req.ShippingAddress, req.BillingAddress)
		respondSummary(c, route, s, err)
	}
}

func QuoteShippingRates(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/shipping/rates"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
		defer cancel()

		s, err := o.QuoteRates(ctx, identity(c))
		respondSummary(c, route, s, err)
	}
}

func SelectShippingRate(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/shipping/select"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var req selectShippingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		s, err := o.SelectShipping(ctx, identity(c), req.ServiceCode)
		respondSummary(c, route, s, err)
	}
}

func ApplyDiscount(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/discount"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var req discountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		s, err := o.ApplyDiscount(ctx, identity(c), req.Code)
		respondSummary(c, route, s, err)
	}
}

func RemoveDiscount(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /checkout/discount"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		s, err := o.RemoveDiscount(ctx, identity(c))
		respondSummary(c, route, s, err)
	}
}

func ConfirmCheckout(o *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/confirm"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		ctx, span := tracer.Start(ctx, "ConfirmCheckout")
		defer span.End()

		order, err := o.Confirm(ctx, identity(c))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "confirm failed")
			respondWithAppError(c, route, err)
			return
		}
		span.SetAttributes(
			attribute.String("order.id", order.ID.Hex()),
			attribute.Int64("order.grand_total", order.GrandTotal),
		)
		c.JSON(http.StatusCreated, order)
	}
}
