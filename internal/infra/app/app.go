package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/challenge"
	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/database"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/llm"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/logger"
	redisinfra "github.com/xkrfer/telegram-pm-relay/internal/infra/redis"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/telemetry"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/turnstile"
	postgresrepo "github.com/xkrfer/telegram-pm-relay/internal/repository/postgres"
	redisrepo "github.com/xkrfer/telegram-pm-relay/internal/repository/redis"
	"github.com/xkrfer/telegram-pm-relay/internal/transport/http/routes"
	transporttg "github.com/xkrfer/telegram-pm-relay/internal/transport/telegram"
	"github.com/xkrfer/telegram-pm-relay/internal/usecase"
)

// Application holds the wired process: the Telegram bot, the HTTP server
// for verification pages and observability, and the periodic sweeper.
type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	bot     *bot.Bot
	sweeper *usecase.Sweeper
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Attach(cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	users := postgresrepo.NewUserRepository(pool)
	records := postgresrepo.NewMessageRepository(pool)
	bans := postgresrepo.NewBanRepository(pool)
	filters := postgresrepo.NewFilterRepository(pool)
	templates := postgresrepo.NewTemplateRepository(pool)
	configRepo := postgresrepo.NewConfigRepository(pool)
	statsCache := redisrepo.NewStatsCache(redisClient.Client(), cfg.Redis.KeyPrefix+":stats")

	b, err := bot.New(cfg.Telegram.BotToken,
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {}),
	)
	if err != nil {
		redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init bot: %w", err)
	}
	sender := transporttg.NewSender(b, log)

	configService := usecase.NewConfigService(configRepo, cfg, log)
	if err := configService.InitializeDefaults(ctx); err != nil {
		log.Warn("initialize config defaults failed", zap.Error(err))
	}

	fraudService := usecase.NewFraudService(bans, log)
	filterService := usecase.NewFilterService(filters, log)
	templateService := usecase.NewTemplateService(templates, log)
	rateLimitService := usecase.NewRateLimitService(users, cfg.RateLimit, log)
	statsService := usecase.NewStatsService(records, bans, statsCache, cfg.Stats.CacheTTL, log)

	strategies := map[domain.VerificationMethod]port.ChallengeStrategy{
		domain.MethodMath: challenge.NewMathStrategy(sender, log),
		domain.MethodQuiz: challenge.NewQuizStrategy(sender, log),
	}
	if cfg.Turnstile.SiteKey != "" && cfg.Turnstile.SecretKey != "" {
		strategies[domain.MethodTurnstile] = challenge.NewTurnstileStrategy(
			sender, cfg.Verification.BaseURL, cfg.Verification.Timeout, log)
	}
	if cfg.AI.APIKey != "" {
		chatClient := llm.New(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
		strategies[domain.MethodAI] = challenge.NewAIStrategy(chatClient, sender, log)
	}

	verificationService := usecase.NewVerificationService(users, configService, strategies, log)
	relayService := usecase.NewRelayService(
		users, records, sender,
		rateLimitService, verificationService, fraudService, filterService, configService,
		cfg.Telegram, log)

	handler := transporttg.NewHandler(transporttg.Deps{
		Relay:        relayService,
		Verification: verificationService,
		RateLimiter:  rateLimitService,
		Fraud:        fraudService,
		Filters:      filterService,
		Templates:    templateService,
		Stats:        statsService,
		Config:       configService,
		Users:        users,
		Records:      records,
		Sender:       sender,
		Telegram:     cfg.Telegram,
		VerifyBase:   cfg.Verification.BaseURL,
		Updates:      provider.UpdateCounter(),
		Logger:       log,
	})
	handler.Register(b)

	captcha := turnstile.NewClient(cfg.Turnstile.SecretKey, log)
	engine := routes.Register(routes.Dependencies{
		Config:       cfg,
		Logger:       log,
		Verification: verificationService,
		Captcha:      captcha,
		Messenger:    sender,
		Database:     pool,
		Cache:        redisClient,
	})

	sweeper := usecase.NewSweeper(fraudService, statsService, configService, time.Hour, log)

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		bot:     b,
		sweeper: sweeper,
	}, nil
}

// Run starts the bot long poller, the HTTP server, and the ban sweeper,
// blocking until the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()

	go a.sweeper.Run(ctx)

	go func() {
		a.logger.Info("starting bot long poller")
		a.bot.Start(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting relay server",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
