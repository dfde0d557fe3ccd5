package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
	"github.com/xkrfer/telegram-pm-relay/internal/transport/http/handlers"
	"github.com/xkrfer/telegram-pm-relay/internal/transport/http/middleware"
)

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	Verification handlers.SessionCompleter
	Captcha      handlers.CaptchaVerifier
	Messenger    port.Messenger
	Database     DatabaseChecker
	Cache        CacheChecker
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{}); err == nil {
		r.Use(metrics.Handler())
	} else if deps.Logger != nil {
		deps.Logger.Warn("http metrics disabled", zap.Error(err))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	verifyHandler := handlers.NewVerifyHandler(
		deps.Verification,
		deps.Captcha,
		deps.Messenger,
		deps.Config.Turnstile.SiteKey,
		deps.Logger,
	)
	r.GET("/verify/:token", verifyHandler.Page)
	r.POST("/verify/:token", verifyHandler.Submit)

	return r
}
