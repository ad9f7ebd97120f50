package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workmoa/server/internal/module/market"
	"github.com/workmoa/server/internal/module/order"
	"github.com/workmoa/server/internal/module/payment"
	"github.com/workmoa/server/internal/module/payment/gateway"
	"github.com/workmoa/server/internal/shared/cache"
	"github.com/workmoa/server/internal/shared/config"
	"github.com/workmoa/server/internal/shared/database"
	"github.com/workmoa/server/internal/shared/logger"
	"github.com/workmoa/server/internal/utils/metrics"
	"github.com/workmoa/server/internal/utils/middleware"
)

// App holds the wired application.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	server *http.Server
}

// New wires the full application: config, logger, database, redis, metrics,
// modules and routes. Dependencies are passed explicitly, top to bottom.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrate(
		&market.Post{},
		&market.ChatOffer{},
		&order.Order{},
		&payment.Payment{},
		&payment.WebhookEvent{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional: webhook dedup and rate limiting degrade to the
	// database guard without it.
	var redisClient redis.UniversalClient
	if cfg.Redis.Address != "" {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, dedup fast path disabled", zap.Error(err))
			redisClient = nil
		}
	}

	m := metrics.New("workmoa")

	orderCfg := order.Config{
		FeeRate:      cfg.Order.FeeRate,
		CancelWindow: cfg.Order.CancelWindow,
	}

	// Modules.
	marketSource := market.NewSource(db)

	orderRepo := order.NewRepository(db)
	orderFactory := order.NewFactory(orderRepo, marketSource, log)
	orderService := order.NewService(db, orderRepo, log)
	orderHandler := order.NewHandler(orderService, orderCfg, log)

	tossClient := gateway.NewTossClient(gateway.TossConfig{
		BaseURL:   cfg.Toss.BaseURL,
		SecretKey: cfg.Toss.SecretKey,
		Timeout:   cfg.Toss.RequestTimeout,
	}, log)

	paymentRepo := payment.NewRepository(db)
	paymentService := payment.NewService(db, paymentRepo, orderRepo, orderFactory, tossClient, orderCfg, log, m)
	webhookProcessor := payment.NewWebhookProcessor(payment.WebhookConfig{
		Secret: cfg.Toss.WebhookSecret,
		Policy: cfg.Toss.SecurityPolicy,
	}, paymentService, paymentRepo, redisClient, log, m)
	paymentHandler := payment.NewHandler(paymentService, webhookProcessor, orderCfg, log)

	router := setupRouter(log, m)

	v1 := router.Group("/api/v1")

	provider := v1.Group("")
	provider.Use(middleware.RateLimit(redisClient, middleware.DefaultRateLimitConfig()))
	paymentHandler.RegisterProviderRoutes(provider)

	authed := v1.Group("")
	authed.Use(middleware.Identity())
	orderHandler.RegisterRoutes(authed)
	paymentHandler.RegisterRoutes(authed)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		cfg:    cfg,
		logger: log,
		db:     db,
		redis:  redisClient,
		server: server,
	}, nil
}

func setupRouter(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.Metrics(m))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run starts the HTTP server and blocks until it stops.
func (a *App) Run() error {
	a.logger.Info("server starting", zap.String("address", a.cfg.Server.Address))
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the application down gracefully.
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("server stopping")

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown failed", zap.Error(err))
	}
	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}

	_ = a.logger.Sync()
	return nil
}
