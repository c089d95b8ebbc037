package middleware

import (
	"github.com/gin-gonic/gin"
)

const IdempotencyKeyContext = "idempotency_key"

// Idempotency extracts the Idempotency-Key header for handlers that replay
// previously processed requests.
func Idempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(IdempotencyKeyContext, c.GetHeader("Idempotency-Key"))
		c.Next()
	}
}
