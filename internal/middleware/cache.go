package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CacheConfig represents cache control configuration
type CacheConfig struct {
	MaxAge int
	Vary   []string
}

// DefaultCacheConfig keeps per-user responses out of shared caches.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Vary: []string{"Origin", "Accept", "Authorization", HeaderSessionID},
	}
}

// Cache adds cache control headers to responses. Everything the planner
// returns belongs to one session, so responses are always private.
func Cache(config CacheConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != "GET" || config.MaxAge <= 0 {
			c.Header("Cache-Control", "no-store")
		} else {
			c.Header("Cache-Control", "private, max-age="+strconv.Itoa(config.MaxAge)+", must-revalidate")
		}

		if len(config.Vary) > 0 {
			c.Header("Vary", strings.Join(config.Vary, ", "))
		}

		c.Next()
	}
}
