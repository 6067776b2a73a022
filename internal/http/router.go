// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/docs"
	"github.com/tbourn/rfi-tracker/internal/config"
	"github.com/tbourn/rfi-tracker/internal/http/handlers"
	"github.com/tbourn/rfi-tracker/internal/http/middleware"
	"github.com/tbourn/rfi-tracker/internal/mailtransport"
	"github.com/tbourn/rfi-tracker/internal/repo"
	"github.com/tbourn/rfi-tracker/internal/services"
)

// WebhookPath is the push endpoint registered with the mail provider.
const WebhookPath = "/webhooks/gmail/push"

// idempotencyShim adapts the repository free functions to the lookup used by
// middleware.IdempotencyValidator and the store used by the send handler.
type idempotencyShim struct{ db *gorm.DB }

// Lookup proxies repo.GetIdempotency; a missing or expired record is a miss.
func (s idempotencyShim) Lookup(ctx context.Context, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, scope, key, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Save proxies repo.CreateIdempotency. A concurrent retry that stored the
// same key first is not an error.
func (s idempotencyShim) Save(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.db, scope, key, resourceID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath. Every route is
// registered after the last Use so each one runs the full chain.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per route and IP, or per IP; webhook and replays bypass)
//  9. Compression, CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, mail mailtransport.Transport, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.AccessLog(middleware.RedactOptions{
		MaskHeaders: []string{"X-Goog-Channel-Token"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB); the webhook applies its own cap
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics
	r.Use(middleware.Metrics())

	// 7) Idempotency validation (before rate limiting)
	idem := idempotencyShim{db: db}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Lookup))

	// 8) Token-bucket rate limiter per client, optionally split by route
	key := middleware.KeyByRouteAndIP()
	if cfg.RateKey == config.RateKeyIP {
		key = middleware.KeyByClientIP()
	}
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, key)
	r.Use(middleware.BypassRateLimit(WebhookPath))
	r.Use(rl.Handler())

	// 9) Compression, CORS posture (allow all if none configured), security headers
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", WebhookPath})))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStorePaths: []string{"/metrics", WebhookPath},
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health and scrape endpoint
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services <- db/transport
	rfiSvc := services.NewRFIService(db, cfg.RFI)
	dispatchSvc := services.NewDispatchService(db, mail, cfg.Mail)
	ingestSvc := services.NewIngestService(db, mail)
	ingestSvc.Mailbox = cfg.Mail.From
	h := handlers.New(rfiSvc, dispatchSvc, ingestSvc, handlers.Options{
		Idempotency:         idem,
		IdempotencyTTL:      cfg.IdempotencyTTL,
		WebhookMaxBodyBytes: cfg.WebhookMaxBodyBytes,
	})

	// Inbound mail
	r.POST(WebhookPath, h.GmailPush)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Project-scoped
		api.POST("/projects/:projectId/rfis", h.CreateRFI)
		api.GET("/projects/:projectId/rfis", h.ListRFIs)
		api.GET("/projects/:projectId/rfis/summary", h.ProjectSummary)

		// RFIs
		api.GET("/rfis/:id", h.GetRFI)
		api.PATCH("/rfis/:id", h.UpdateRFI)
		api.DELETE("/rfis/:id", h.DeleteRFI)
		api.POST("/rfis/:id/status", h.TransitionRFI)
		api.POST("/rfis/:id/send", h.SendRFI)
		api.GET("/rfis/:id/responses", h.ListResponses)
		api.GET("/rfis/:id/email-log", h.ListEmailLog)
	}
}

// corsMiddleware returns the CORS posture for origins: allow all when the
// list is empty, otherwise echo allow-listed origins.
func corsMiddleware(origins []string) gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false, // must remain false with AllowAllOrigins
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		inner := cors.New(base)
		return func(c *gin.Context) {
			// Force ACAO: * even without an Origin header (health checks, curl).
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			inner(c)
		}
	}

	base.AllowOrigins = origins
	inner := cors.New(base)
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		inner(c)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
