package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kev-hfmn/review-reply-app-sub003/utils"
)

// SessionMiddleware resolves the caller's user/business from the JWT session token.
// Requests without a token pass through; handlers that need identity reject them.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		parsed, err := utils.JwtValidate(token)
		if err != nil || !parsed.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserIdInContext(ctx, claims.UserId)
		if claims.BusinessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, claims.BusinessId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
