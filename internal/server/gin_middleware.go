package server

import (
	"github.com/gin-gonic/gin"
)

// securityHeadersMiddleware adds response headers common to every route.
func (s *GinServer) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")

		c.Header("X-Service-Version", s.version)
		if s.apiValidator != nil {
			c.Header("X-API-Validation", "enabled")
		} else {
			c.Header("X-API-Validation", "disabled")
		}
		c.Next()
	}
}
