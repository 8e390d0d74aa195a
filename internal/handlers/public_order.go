package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/middleware"
	"storefront/internal/orders"
)

// GetMyOrder shows an order to the user or cart session that placed it.
// Orders of other buyers are reported as missing.
func GetMyOrder(manager *orders.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
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
		if !order.OwnedBy(middleware.UserID(c), middleware.SessionID(c)) {
			respondWithAppError(c, route, apperr.New(apperr.ErrOrderNotFound, "order %s not found", orderID.Hex()))
			return
		}
		c.JSON(http.StatusOK, order)
	}
}
