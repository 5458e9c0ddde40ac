package handler

import (
	"github.com/gin-gonic/gin"
)

type CorsHandler struct {
	allowedOrigins map[string]bool
}

func NewCorsHandler(allowedOrigins []string) *CorsHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}
	return &CorsHandler{allowedOrigins: origins}
}

func (h *CorsHandler) CorsMiddleware(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if len(h.allowedOrigins) == 0 {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	} else if h.allowedOrigins[origin] {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, admin_token")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(200)
		return
	}
	c.Next()
}
