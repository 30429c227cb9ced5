package middleware

import (
	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/gin-gonic/gin"
)

// ClientIP stores gin's view of the client address on the request context.
// Forwarding headers are honored per the gin engine's trusted proxies.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := goOnboard.WithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
