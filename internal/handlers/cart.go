package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cart"
	"storefront/internal/models"
)

type addCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,gte=0"`
}

func cartView(c *models.Cart, currency string) gin.H {
	if c == nil {
		return gin.H{"items": []models.CartItem{}, "currency": currency, "status": models.CartActive}
	}
	items := c.Items
	if items == nil {
		items = []models.CartItem{}
	}
	return gin.H{"id": c.ID.Hex(), "items": items, "currency": c.Currency, "status": c.Status, "updatedAt": c.UpdatedAt}
}

func GetCart(carts *cart.Service, currency string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /cart"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		current, err := carts.Find(ctx, identity(c))
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		if current != nil {
			if err := carts.Refresh(ctx, current); err != nil {
				respondWithAppError(c, route, err)
				return
			}
		}
		c.JSON(http.StatusOK, cartView(current, currency))
	}
}

func AddCartItem(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart/items"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var req addCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		productID, err := primitive.ObjectIDFromHex(req.ProductID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		updated, err := carts.AddItem(ctx, identity(c), productID, req.Quantity)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, cartView(updated, updated.Currency))
	}
}

func UpdateCartItem(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /cart/items/:productId"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		productID, ok := paramObjectID(c, route, "productId")
		if !ok {
			return
		}
		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		updated, err := carts.UpdateQty(ctx, identity(c), productID, *req.Quantity)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, cartView(updated, updated.Currency))
	}
}

func RemoveCartItem(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart/items/:productId"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		productID, ok := paramObjectID(c, route, "productId")
		if !ok {
			return
		}
		updated, err := carts.RemoveItem(ctx, identity(c), productID)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, cartView(updated, updated.Currency))
	}
}

func ClearCart(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart/clear"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		updated, err := carts.Clear(ctx, identity(c))
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, cartView(updated, updated.Currency))
	}
}
