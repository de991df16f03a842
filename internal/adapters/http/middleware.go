package http

import (
	"net/http"
	"strings"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
	"github.com/gin-gonic/gin"
)

const userKey = "user_id"

// IdentityMiddleware resolves the bearer token into a user id.
func IdentityMiddleware(ids core.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		uid, err := ids.ResolveToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userKey, uid)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	uid, _ := c.Get(userKey)
	id, _ := uid.(domain.UserID)
	return id
}
