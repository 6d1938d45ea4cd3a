package middleware

import (
	"errors"
	"net/http"
	"strings"

	jwtutil "github.com/Veenoway/on-chain-chess-sub001/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// AdminAuth requires a Bearer token carrying the admin role. A nil manager
// disables the check.
func AdminAuth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtManager == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "UNAUTHORIZED",
			})
			return
		}

		// "Bearer <token>" 형식 파싱
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "UNAUTHORIZED",
			})
			return
		}

		claims, err := jwtManager.VerifyRole(strings.TrimSpace(parts[1]), jwtutil.RoleAdmin)
		if errors.Is(err, jwtutil.ErrForbidden) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "FORBIDDEN",
			})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "UNAUTHORIZED",
			})
			return
		}

		c.Set("adminSubject", claims.Subject)
		c.Next()
	}
}
