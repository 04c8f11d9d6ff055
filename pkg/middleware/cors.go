package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/navigator/pkg/httpclient"
)

// CORS allows the comma-separated origins; "*" allows any origin.
func CORS(origins string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()

	allowed := make([]string, 0)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowed
		cfg.AllowCredentials = true
	}

	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", httpclient.CorrelationIDHeader}
	cfg.ExposeHeaders = []string{httpclient.CorrelationIDHeader, "X-Trace-ID"}
	cfg.MaxAge = 12 * time.Hour

	return cors.New(cfg)
}
