// Package api wires together all HTTP routes for the StockTrail audit service.
//
// Route grouping philosophy:
//   - /health is unauthenticated so load balancers and orchestrators can probe
//     liveness without credentials.
//   - /api/v1/audit carries the trail surface. Authentication and CSRF are
//     handled by the fronting platform; the acting identity arrives in
//     X-Actor-* headers and is treated as opaque input.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stocktrail/stocktrail/internal/api/trail"
	"github.com/stocktrail/stocktrail/internal/audit"
	"github.com/stocktrail/stocktrail/internal/config"
	"github.com/stocktrail/stocktrail/internal/db/repositories"
	"github.com/stocktrail/stocktrail/internal/middleware"
)

// BackgroundServices holds resources that must be stopped during graceful
// shutdown. The caller (cmd/server) calls Shutdown() after the HTTP server
// has drained so buffered audit records are flushed before exit.
type BackgroundServices struct {
	shipper      *audit.MultiShipper
	rateLimiters []*middleware.RateLimiter
	labelsStop   chan struct{}
}

// Shutdown stops background goroutines and flushes the audit shippers.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.labelsStop != nil {
		close(bg.labelsStop)
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS.AllowedOrigins, cfg.Security.CORS.AllowedMethods))

	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   middleware.DefaultRateLimitConfig().CleanupInterval,
		})
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		router.Use(middleware.RateLimitMiddleware(limiter))
	}

	// Table-label lookup, injected into the describer. Missing file is not
	// fatal: identifiers pass through unchanged until labels are supplied.
	labels := audit.NewTableLabels(nil)
	if cfg.Audit.TableLabelsFile != "" {
		loaded, err := audit.LoadLabelsFile(cfg.Audit.TableLabelsFile)
		if err != nil {
			slog.Warn("failed to load table labels, using passthrough", "error", err)
		} else {
			labels = loaded
			if cfg.Audit.WatchTableLabels {
				bg.labelsStop = make(chan struct{})
				if err := labels.Watch(cfg.Audit.TableLabelsFile, bg.labelsStop); err != nil {
					slog.Warn("failed to watch table labels file", "error", err)
				}
			}
		}
	}

	// External shipping of committed records (file, webhook).
	shipper, err := audit.NewMultiShipper(shipperConfigs(cfg.Audit.Shippers))
	if err != nil {
		return nil, nil, err
	}
	bg.shipper = shipper

	sqlxDB := sqlx.NewDb(database, "postgres")
	auditRepo := repositories.NewAuditRepository(sqlxDB)
	recorder := audit.NewRecorder(auditRepo, audit.WithShipper(shipper))
	describer := audit.NewDescriber(labels)

	handlers := trail.NewHandlers(auditRepo, recorder, describer, cfg.Audit.RecentActivityLimit)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.Telemetry.ServiceName})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/audit", handlers.RecordHandler())
		v1.GET("/audit", handlers.ListHandler())
		v1.GET("/audit/stats", handlers.StatsHandler())
		v1.GET("/audit/export", handlers.ExportHandler())
		v1.GET("/audit/:id", handlers.GetHandler())
	}

	return router, bg, nil
}

// shipperConfigs maps the config package's shipper settings onto the audit
// package's constructor types.
func shipperConfigs(configs []config.AuditShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(configs))
	for _, cfg := range configs {
		sc := audit.ShipperConfig{
			Enabled: cfg.Enabled,
			Type:    cfg.Type,
		}
		if cfg.Webhook != nil {
			sc.Webhook = &audit.WebhookConfig{
				URL:           cfg.Webhook.URL,
				Headers:       cfg.Webhook.Headers,
				Timeout:       secondsToDuration(cfg.Webhook.TimeoutSecs),
				BatchSize:     cfg.Webhook.BatchSize,
				FlushInterval: secondsToDuration(cfg.Webhook.FlushInterval),
			}
		}
		if cfg.File != nil {
			sc.File = &audit.FileConfig{
				Path:       cfg.File.Path,
				MaxSizeMB:  cfg.File.MaxSizeMB,
				MaxBackups: cfg.File.MaxBackups,
			}
		}
		out = append(out, sc)
	}
	return out
}

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
