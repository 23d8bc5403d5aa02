package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const accountIDKey = "account_id"

// RequireAuth rejects requests without a valid bearer token and stores the
// account id in the Gin context for downstream handlers.
func RequireAuth(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token is required"})
			return
		}

		claims, err := svc.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(accountIDKey, claims.Subject)
		c.Next()
	}
}

// AccountID returns the authenticated account id, if any.
func AccountID(c *gin.Context) string {
	value, ok := c.Get(accountIDKey)
	if !ok {
		return ""
	}
	id, _ := value.(string)
	return id
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
