package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TicketVerifier checks that token was issued for sessionID.
type TicketVerifier interface {
	Verify(token, sessionID string) error
}

const ticketContextKey = "session_ticket"

// TicketFromContext returns the ticket accepted by [RequireTicket].
func TicketFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ticketContextKey)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

// RequireTicket rejects requests whose bearer ticket does not belong to the
// session in route parameter param.
func RequireTicket(verifier TicketVerifier, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			abortUnauthorized(c)
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c)
			return
		}
		if err := verifier.Verify(token, c.Param(param)); err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(ticketContextKey, token)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"outcome": "unauthorized",
		"message": "missing or invalid session ticket",
	})
}

func bearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
