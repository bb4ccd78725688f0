package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AllowOrigins []string
	MaxUploadMB  int64
}

// SetupRouter wires the study assistant routes under /api
func SetupRouter(svc Assistant, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger())
	r.Use(CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewHandler(svc, cfg.MaxUploadMB)
	h.RegisterRoutes(r.Group("/api"))
	return r
}
