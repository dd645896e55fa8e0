// Package httpapi wires the Gin transport to the dose service, the asset
// cache and the shared middleware (tracing, correlation ids, redacted access
// logs, panic recovery, metrics, idempotency, rate limiting, CORS and
// security headers).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-dose-timer/docs"
	"github.com/tbourn/go-dose-timer/internal/assets"
	"github.com/tbourn/go-dose-timer/internal/config"
	"github.com/tbourn/go-dose-timer/internal/http/handlers"
	"github.com/tbourn/go-dose-timer/internal/http/middleware"
	"github.com/tbourn/go-dose-timer/internal/repo"
	"github.com/tbourn/go-dose-timer/internal/services"
)

// maxBody caps request bodies, imports included.
const maxBody = 1 << 20

// RegisterRoutes installs the middleware chain and mounts the app shell at /,
// the JSON API under cfg.APIBasePath, plus /health, /metrics and, when
// enabled, /swagger.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Idempotency validator (before the limiter so replays bypass it)
//  8. Rate limiter
//  9. CORS, security headers, gzip
func RegisterRoutes(r *gin.Engine, svc *services.DoseService, shell *assets.Cache, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
		SkipPaths:   []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBody))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, clientID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, svc.DB, clientID, key, now)
			return err == nil && rec != nil, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClient())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))

	csp := middleware.DefaultCSP
	if cfg.SwaggerEnabled {
		// Swagger UI relies on inline scripts.
		csp = ""
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		CSP:          csp,
	}))

	// The status stream must reach the client event by event.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", apiBase + "/status/stream"}),
	))

	r.NoRoute(func(c *gin.Context) {
		if shell != nil && shell.Fallback(c) {
			return
		}
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if shell != nil {
		app := r.Group("", shell.Middleware())
		for _, p := range assets.Shell {
			app.GET(p, shell.Serve)
		}
	}

	h := handlers.New(svc)
	h.Tick = cfg.Dose.TickInterval

	api := groupWithPrefix(r, apiBase)
	{
		api.GET("/doses", h.ListDoses)
		api.POST("/doses", h.AddDose)
		api.DELETE("/doses", h.DeleteDoses)
		api.DELETE("/doses/:id", h.DeleteDose)

		api.GET("/status", h.Status)
		api.GET("/status/stream", h.StatusStream)

		api.GET("/export", h.Export)
		api.POST("/import", h.Import)
	}
}

// corsMiddleware allows every origin when none is configured (credentials
// are never allowed then) and the configured list otherwise.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Content-Disposition", handlers.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps request bodies at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
