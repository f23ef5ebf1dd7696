package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/analytics"
	"portfolio-analytics-api/internal/clients"
	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/controllers"
	"portfolio-analytics-api/internal/middleware"
	"portfolio-analytics-api/internal/messaging"
	"portfolio-analytics-api/internal/narrative"
	mongorepo "portfolio-analytics-api/internal/repositories/mongo"
	"portfolio-analytics-api/internal/scheduler"
	"portfolio-analytics-api/internal/services"
	"portfolio-analytics-api/internal/views"
	"portfolio-analytics-api/pkg/cache"
	"portfolio-analytics-api/pkg/database"
	"portfolio-analytics-api/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logrus.Fatal("Invalid configuration: ", err)
	}

	// Initialize logger
	logger.Init(cfg.Logger)
	log := logrus.StandardLogger()
	log.WithField("service", "portfolio-analytics-api").Info("Starting Portfolio Analytics API service...")

	// Initialize database connection
	db, err := database.NewMongoDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer db.Disconnect()

	// Initialize Redis cache
	cacheClient, err := cache.NewRedisClient(cfg.Cache)
	if err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer cacheClient.Close()

	// Initialize repositories
	portfolioRepo := mongorepo.NewPortfolioRepository(db.GetDatabase())
	transactionRepo := mongorepo.NewTransactionRepository(db.GetDatabase())
	healthRepo := mongorepo.NewHealthScoreRepository(db.GetDatabase())
	alertRepo := mongorepo.NewAlertRepository(db.GetDatabase())

	// Initialize market data client (with shared symbol cache) and the
	// analytics engine
	marketClient := clients.NewCachedMarketDataClient(
		clients.NewMarketDataClient(cfg.Market),
		cacheClient,
		cfg.Cache.PriceHistoryTTL,
		cfg.Cache.QuoteTTL,
	)
	engine := analytics.NewEngine(marketClient, cfg.Analytics, cfg.Market.FetchTimeout, log)
	rebalancer := views.NewRebalancer(marketClient, log)
	narrator := narrative.NewGenerator(cfg.Narrative, log)

	// Initialize RabbitMQ publisher (nil-safe when disabled)
	publisher, err := messaging.NewTransactionPublisher(cfg.RabbitMQ, log)
	if err != nil {
		log.Error("Failed to initialize RabbitMQ publisher, transaction events disabled: ", err)
	}
	defer publisher.Close()

	// Initialize services
	portfolioService := services.NewPortfolioService(
		portfolioRepo, transactionRepo, healthRepo, alertRepo,
		marketClient, publisher, cacheClient, log,
	)
	analyticsService := services.NewAnalyticsService(
		portfolioRepo, transactionRepo, healthRepo,
		engine, rebalancer, narrator,
		cacheClient, cfg.Cache.AnalysisTTL, cfg.Analytics, log,
	)
	alertService := services.NewAlertService(
		alertRepo, portfolioRepo, marketClient, analyticsService, log,
	)

	// Initialize controllers
	portfolioController := controllers.NewPortfolioController(portfolioService, log)
	analyticsController := controllers.NewAnalyticsController(analyticsService, log)
	alertController := controllers.NewAlertController(alertService, log)

	// Start the nightly health score snapshot job
	healthScheduler, err := scheduler.New(portfolioRepo, healthRepo, engine, cfg.Scheduler, log)
	if err != nil {
		log.Fatal("Failed to initialize scheduler: ", err)
	}
	if err := healthScheduler.Start(); err != nil {
		log.Fatal("Failed to start scheduler: ", err)
	}
	defer healthScheduler.Stop()

	// Setup HTTP server
	router := setupRouter(cfg, log, db, cacheClient, marketClient, portfolioController, analyticsController, alertController)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	log.Info("Server stopped")
}

func setupRouter(
	cfg *config.Config,
	log *logrus.Logger,
	db *database.MongoDB,
	cacheClient *cache.RedisClient,
	marketClient *clients.CachedMarketDataClient,
	portfolioController *controllers.PortfolioController,
	analyticsController *controllers.AnalyticsController,
	alertController *controllers.AlertController,
) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics())

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimitMiddleware(cfg.RateLimit)
		router.Use(rateLimiter.IPRateLimit())
	}

	// Health and metrics endpoints stay outside authentication
	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "portfolio-analytics-api",
		})
	})
	router.GET("/ready", func(ctx *gin.Context) {
		checks := gin.H{
			"mongodb":     db.IsHealthy(ctx.Request.Context()),
			"redis":       cacheClient.IsHealthy(ctx.Request.Context()),
			"market_data": marketClient.IsHealthy(ctx.Request.Context()),
		}
		status := http.StatusOK
		for _, healthy := range []bool{checks["mongodb"].(bool), checks["redis"].(bool)} {
			if !healthy {
				status = http.StatusServiceUnavailable
			}
		}
		ctx.JSON(status, gin.H{"checks": checks})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.NewAuthMiddleware(cfg.Auth)

	api := router.Group("/api")
	api.Use(auth.JWTAuth())

	portfolios := api.Group("/portfolios")
	portfolioController.RegisterRoutes(portfolios)
	analyticsController.RegisterRoutes(portfolios, api)
	alertController.RegisterRoutes(api)

	return router
}
