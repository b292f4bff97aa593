package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func OnlyAllowLocal(c *gin.Context) {
	if c.ClientIP() == "127.0.0.1" || c.ClientIP() == "::1" {
		c.Next()
	} else {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

// LocalUnless restricts to loopback clients unless allowRemote is set, for
// operators who open the dashboard from a phone on the same LAN.
func LocalUnless(allowRemote bool) gin.HandlerFunc {
	if allowRemote {
		return func(c *gin.Context) { c.Next() }
	}
	return OnlyAllowLocal
}
