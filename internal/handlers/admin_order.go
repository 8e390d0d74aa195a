package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
	"storefront/internal/orders"
)

type orderReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type shipmentUpdateRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"trackingNumber"`
	Payload        string `json:"payload"`
}

func ListOrders(manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid pagination")
			return
		}

		filter := models.OrderFilter{Status: models.OrderStatus(c.Query("status"))}
		list, total, err := manager.List(ctx, filter, page, limit)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": list,
			"pagination": gin.H{
				"page":       page,
				"limit":      limit,
				"total":      total,
				"totalPages": totalPages(total, limit),
			},
		})
	}
}

func GetOrder(manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders/:id"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		orderID, ok := paramObjectID(c, route, "id")
		if !ok {
			return
		}
		order, err := manager.Get(ctx, orderID)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func CancelOrder(manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/cancel"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		orderID, ok := paramObjectID(c, route, "id")
		if !ok {
			return
		}
		var req orderReasonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		order, err := manager.Cancel(ctx, orderID, req.Reason)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func RefundOrder(manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/refund"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		orderID, ok := paramObjectID(c, route, "id")
		if !ok {
			return
		}
		var req orderReasonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		order, err := manager.Refund(ctx, orderID, req.Reason)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func UpdateShipment(manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/orders/:id/shipments/:shipmentId"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		orderID, ok := paramObjectID(c, route, "id")
		if !ok {
			return
		}
		shipmentID, ok := paramObjectID(c, route, "shipmentId")
		if !ok {
			return
		}
		var req shipmentUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		order, err := manager.UpdateShipment(ctx, orderID, shipmentID, orders.ShipmentUpdate{
			Status:         req.Status,
			TrackingNumber: req.TrackingNumber,
			Payload:        req.Payload,
		})
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}
