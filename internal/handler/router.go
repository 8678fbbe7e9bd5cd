package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendboard/internal/httpmiddleware"
)

// RouterOptions tune the middleware stack.
type RouterOptions struct {
	RateLimitPerMin int
	AllowedOrigins  []string
}

// NewRouter mounts every route on a fresh engine.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	{
		v1.GET("/dashboard/overview", h.Overview)
		v1.GET("/dashboard/stats", h.Stats)
		v1.GET("/dashboard/chart", h.Chart)
		v1.GET("/dashboard/weekly", h.Weekly)

		v1.GET("/attendance", h.ListAttendance)
		v1.GET("/alerts", h.ListAlerts)

		v1.GET("/admin/status", h.DatabaseStatus)
		v1.GET("/admin/diagnostics", h.Diagnostics)
		v1.POST("/admin/seed", h.StartSeed)
		v1.GET("/admin/seed/last", h.LastSeed)

		v1.POST("/reports/snapshot", h.Snapshot)
		v1.GET("/reports/daily", h.DailyHistory)
	}
	return r
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
