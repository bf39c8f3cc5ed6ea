package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const operatorKey = "operator"

// OperatorAuth admits requests whose bearer token is signed with signingKey
// and carries the operator role. With no signing key every request passes.
func OperatorAuth(signingKey, issuer string) gin.HandlerFunc {
	if signingKey == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := Parse(raw, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Role != RoleOperator {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator role required"})
			return
		}
		c.Set(operatorKey, claims.Subject)
		c.Next()
	}
}

// Operator returns the authenticated operator's subject, or "" when the
// route ran without operator auth.
func Operator(c *gin.Context) string {
	return c.GetString(operatorKey)
}

func bearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
