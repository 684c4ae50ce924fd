package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cast"
)

// Context keys set by RequireJWT.
const (
	ContextStoreID = "store_id"
	ContextRole    = "role"
	RoleAdmin      = "admin"
)

// ParseAndValidateToken parses an HMAC-signed JWT and returns its claims.
// If expectedType is non-empty, the "typ" claim must match it.
func ParseAndValidateToken(tokenStr string, secret []byte, expectedType string) (jwt.MapClaims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("JWT secret not configured")
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("invalid token type")
		}
	}
	return claims, nil
}

// RequireJWT guards read routes with a bearer access token and exposes the
// caller's store and role to handlers.
func RequireJWT(secret string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || tokenStr == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
			return
		}
		claims, err := ParseAndValidateToken(tokenStr, key, "access")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": err.Error()})
			return
		}
		c.Set(ContextStoreID, cast.ToString(claims["store_id"]))
		c.Set(ContextRole, cast.ToString(claims["role"]))
		c.Next()
	}
}

// CanReadStore reports whether the authenticated caller may see data of storeID.
func CanReadStore(c *gin.Context, storeID string) bool {
	if c.GetString(ContextRole) == RoleAdmin {
		return true
	}
	own := c.GetString(ContextStoreID)
	return own != "" && own == storeID
}
