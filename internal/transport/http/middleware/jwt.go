package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"hrassist/internal/transport/http/response"
)

const (
	ContextUserIDKey    = "user_id"
	ContextNamespaceKey = "namespace"
	ContextRoleKey      = "role"
)

// Claims are issued by the surrounding HR application; this service only
// verifies and reads them. Namespace scopes every document and index
// operation; Role feeds the visibility gate.
type Claims struct {
	UserID    uint   `json:"uid"`
	Namespace string `json:"ns"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := parseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextNamespaceKey, claims.Namespace)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

func parseToken(secret, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == 0 || claims.Namespace == "" {
		return nil, fmt.Errorf("token missing required claims")
	}
	return claims, nil
}
