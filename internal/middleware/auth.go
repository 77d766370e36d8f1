package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"todolist/internal/security"
)

const (
	ContextUserID = "user_id"
	ContextClaims = "access_claims"
)

// AccessVerifier is satisfied by security.TokenIssuer.
type AccessVerifier interface {
	VerifyAccessToken(token string) (*security.AccessClaims, error)
}

// Auth admits requests carrying a valid access token. It never refreshes; an expired token is
// rejected like any other invalid one.
func Auth(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		scheme, tokenStr, found := strings.Cut(authHeader, " ")
		tokenStr = strings.TrimSpace(tokenStr)
		if !found || scheme != "Bearer" || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		claims, err := verifier.VerifyAccessToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextClaims, claims)

		c.Next()
	}
}

// UserID returns the id stored by Auth, or "" when the request was not authenticated.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func Claims(c *gin.Context) (*security.AccessClaims, bool) {
	val, exists := c.Get(ContextClaims)
	if !exists {
		return nil, false
	}
	claims, ok := val.(*security.AccessClaims)
	return claims, ok
}
