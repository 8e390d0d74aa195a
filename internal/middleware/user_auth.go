package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserKey holds the buyer's primitive.ObjectID in the gin context.
const UserKey = "userId"

// OptionalUserAuth injects the userId of a valid bearer token. Requests
// without a token pass through as guests; a malformed or expired token is
// rejected so the buyer does not silently lose their cart.
func OptionalUserAuth(secret string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, secret)
		if errors.Is(err, errMissingToken) {
			c.Next()
			return
		}
		if err != nil {
			log.Warn("[AUTH] token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		userIDValue, ok := claims["userId"].(string)
		if !ok || strings.TrimSpace(userIDValue) == "" {
			log.Warn("[AUTH] userId claim missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		userID, err := primitive.ObjectIDFromHex(userIDValue)
		if err != nil {
			log.Warn("[AUTH] invalid userId claim")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(UserKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated buyer, if any.
func UserID(c *gin.Context) *primitive.ObjectID {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	id, ok := v.(primitive.ObjectID)
	if !ok {
		return nil
	}
	return &id
}
