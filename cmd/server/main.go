package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/cache"
	"github.com/skyroute/booking-backend/internal/config"
	"github.com/skyroute/booking-backend/internal/database"
	"github.com/skyroute/booking-backend/internal/handlers"
	"github.com/skyroute/booking-backend/internal/middleware"
	"github.com/skyroute/booking-backend/internal/services"
	"github.com/skyroute/booking-backend/pkg/aggregator"
	"github.com/skyroute/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SkyRoute Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		logger.Info("Applying database migrations...")
		if err := database.MigrateUp(db.DB.DB); err != nil {
			logger.Fatalf("Failed to apply migrations: %v", err)
		}
		logger.Info("✓ Database migrations applied")
	}

	// Offer cache
	var (
		offerCache  cache.OfferCache
		purger      services.ExpiredOfferPurger
		redisClient *redis.Client
	)
	cacheOpts := cache.Options{TTL: cfg.OfferCache.TTL, Grace: cfg.OfferCache.Grace}
	switch cfg.OfferCache.Backend {
	case "memory":
		memoryCache := cache.NewMemoryOfferCache(cacheOpts, logger)
		offerCache = memoryCache
		purger = memoryCache
		logger.Warn("Offer cache is in-process; offers are lost on restart and not shared between instances")
	default:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		offerCache = cache.NewRedisOfferCache(redisClient, cacheOpts, logger)
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis offer cache connected")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	aggregatorClient := aggregator.NewClient(aggregator.Config{
		BaseURL: cfg.Aggregator.BaseURL,
		APIKey:  cfg.Aggregator.APIKey,
		Timeout: cfg.Aggregator.Timeout,
	}, logger)
	bookingRepository := database.NewBookingRepository(db)
	bookingCoordinator := services.NewBookingCoordinator(bookingRepository, offerCache, aggregatorClient, logger)
	auditService := services.NewAuditService(db)

	// Claims older than a few aggregator timeouts belong to a process that died mid-call
	staleAfter := 3 * cfg.Aggregator.Timeout
	if staleAfter < time.Minute {
		staleAfter = time.Minute
	}
	cronService := services.NewCronService(purger, bookingRepository, auditService, services.CronConfig{
		PurgeSchedule:        cfg.OfferCache.PurgeSchedule,
		StaleClaimAfter:      staleAfter,
		AuditCleanupSchedule: cfg.Audit.CleanupSchedule,
		AuditRetention:       time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour,
	}, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	defer cronService.Stop()

	logger.Info("Services initialized")

	// Initialize handlers
	offerHandler := handlers.NewOfferHandler(aggregatorClient, offerCache, logger)
	bookingHandler := handlers.NewBookingHandler(bookingCoordinator, auditService, logger)
	submitLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		cfg.RateLimit.Burst,
		logger,
	)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.SessionHeader, middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.SessionMiddleware(cfg.Server.SecureCookies))
	if cfg.Server.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, redisClient, cronService))

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.OptionalAuth(jwtService, logger))
	{
		offers := v1.Group("/offers")
		{
			offers.GET("/search", offerHandler.Search)
			offers.PUT("/:fingerprint", offerHandler.StoreOffer)
			offers.GET("/:fingerprint", offerHandler.LoadOffer)
			offers.GET("/:fingerprint/passenger-form", offerHandler.PassengerForm)
		}

		bookings := v1.Group("/bookings")
		{
			bookings.POST("", submitLimiter.Middleware(), bookingHandler.Submit)
			bookings.GET("", middleware.RequireCustomer(), bookingHandler.List)
			bookings.GET("/:reference", bookingHandler.Get)
			bookings.POST("/:reference/cancel", bookingHandler.Cancel)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Aggregator.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// In-flight bookings get the full aggregator timeout to finish
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Aggregator.Timeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, redisClient *redis.Client, cronService *services.CronService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		// Check database connection
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		cacheStatus := "memory"
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":      "unhealthy",
					"database":    "healthy",
					"offer_cache": "unhealthy",
					"error":       err.Error(),
				})
				return
			}
			cacheStatus = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"database":    "healthy",
			"offer_cache": cacheStatus,
			"cron":        cronService.GetJobStatus(),
			"version":     version,
			"timestamp":   time.Now().Unix(),
		})
	}
}
