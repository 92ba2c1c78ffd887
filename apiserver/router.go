// Package apiserver implements the Remote Service Server: the gin HTTP
// API every configured remote_services entry on another server's Service
// Registry talks to. It re-exposes the Service Contract over HTTP so a
// client can drive an adapter it has no local implementation of.
package apiserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ddevcap/unshackle-core/apiserver/handler"
	"github.com/ddevcap/unshackle-core/apiserver/middleware"
	"github.com/ddevcap/unshackle-core/metrics"
)

// RouterConfig bounds the rate limiter and CORS policy; KeyStore nil means
// the server runs with no API-key auth (every request gets an
// unrestricted premium key, matching a trusted-network deployment).
type RouterConfig struct {
	KeyStore    middleware.KeyLookup
	RateLimit   int
	RateWindow  time.Duration
	CORSOrigins []string
}

// NewRouter builds the gin engine and returns it alongside a stop func
// that releases the rate limiter's background goroutine and the job
// stream hub's connections.
func NewRouter(deps *handler.Deps, cfg RouterConfig, streamHub *handler.JobStreamHub) (http.Handler, func()) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	rateMW, stopRate := middleware.RateLimit(cfg.RateLimit, cfg.RateWindow)

	r.Use(gin.Recovery(), middleware.RequestID(), corsMiddleware(cfg.CORSOrigins), metricsMiddleware())

	r.GET("/api/health", deps.Health)
	r.GET("/api/services", deps.Services)
	r.GET("/api/metrics", gin.WrapH(promhttp.Handler()))

	remote := r.Group("/api/remote")
	remote.Use(middleware.Auth(cfg.KeyStore), rateMW)
	{
		remote.GET("/services", deps.RemoteServices)
		remote.POST("/:service/search", deps.Search)
		remote.POST("/:service/titles", deps.Titles)
		remote.POST("/:service/tracks", deps.Tracks)
		remote.POST("/:service/chapters", deps.Chapters)
		remote.POST("/:service/license", deps.License)
		remote.POST("/:service/decrypt", deps.Decrypt)
	}

	dl := r.Group("/api/download")
	dl.Use(middleware.Auth(cfg.KeyStore), rateMW)
	{
		dl.POST("", deps.Download)
		dl.GET("/jobs", deps.ListJobs)
		dl.GET("/jobs/stream", deps.JobStream(streamHub))
		dl.GET("/jobs/:id", deps.GetJob)
		dl.DELETE("/jobs/:id", deps.CancelJob)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "endpoint not found"})
	})

	return r, func() {
		stopRate()
		streamHub.Shutdown()
	}
}

// metricsMiddleware records every request's route and outcome status,
// using the gin-matched route pattern rather than the raw path so
// path-parameter routes don't explode the metric's cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(route, c.Writer.Status())
	}
}

// corsMiddleware allows every configured origin to make credentialed
// requests; unknown origins still get an uncredentialed wildcard so
// public discovery endpoints remain reachable from any browser context.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(o)] = true
	}

	return cors.New(cors.Config{
		AllowOriginWithContextFunc: func(c *gin.Context, origin string) bool {
			if !allowed[strings.ToLower(origin)] {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Writer.Header().Del("Access-Control-Allow-Credentials")
			}
			return true
		},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "X-API-Key", "X-Request-Id"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	})
}
