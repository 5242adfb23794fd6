package http

import (
	"net/http"

	"github.com/astro-web3/authgate/internal/config"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter serves /healthz and the forward-auth endpoint. When upstream is
// non-nil every other request runs through the gate and is proxied to it.
func NewRouter(handler *Handler, cfg *config.Config, upstream http.Handler) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	// The proxied path must reach the gate exactly as sent.
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(gin.Recovery())
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.Any("/auth/check/*path", handler.Check)

	if upstream != nil {
		router.NoRoute(handler.Authenticate(), gin.WrapH(upstream))
	} else {
		router.NoRoute(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusNotFound)
		})
	}

	return router
}
