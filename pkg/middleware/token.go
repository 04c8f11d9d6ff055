package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/navigator/pkg/httpclient"
)

// ForwardAuthorization makes the caller's Authorization header available to
// upstream clients through the request context. The token is not verified
// here; the upstream services own authentication.
func ForwardAuthorization() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.GetHeader("Authorization"); token != "" {
			ctx := httpclient.ContextWithToken(c.Request.Context(), token)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
