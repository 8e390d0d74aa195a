package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/middleware"
)

const (
	// requestTimeout bounds the store work of one request.
	requestTimeout = 5 * time.Second
	// upstreamTimeout also leaves room for one carrier or payment provider call.
	upstreamTimeout = 20 * time.Second
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		slog.Error(fmt.Sprintf("[%s] panic recovered", route), "panic", r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	slog.Info(fmt.Sprintf("[%s] returning error", route), "status", status, "message", message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondWithAppError maps domain errors to their HTTP status. Anything that
// is not an *apperr.Error is an internal failure and its text is not exposed.
func respondWithAppError(c *gin.Context, route string, err error) {
	e, ok := apperr.As(err)
	if !ok {
		slog.Error(fmt.Sprintf("[%s] internal error", route), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	status := e.Status()
	if status >= http.StatusInternalServerError {
		slog.Error(fmt.Sprintf("[%s] request failed", route), "code", e.Code, "err", err)
	} else {
		slog.Info(fmt.Sprintf("[%s] request rejected", route), "code", e.Code, "status", status, "message", e.Message)
	}

	body := gin.H{"error": e.Message, "code": e.Code}
	if e.Message == "" {
		body["error"] = string(e.Code)
	}
	if e.Kind == apperr.KindInvariant {
		body["error"] = "internal server error"
	}
	if e.Resource != "" {
		body["resource"] = e.Resource
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	if e.Retryable() {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body", "details": err.Error()})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func identity(c *gin.Context) cart.Identity {
	return cart.Identity{UserID: middleware.UserID(c), SessionID: middleware.SessionID(c)}
}

func paramObjectID(c *gin.Context, route, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
