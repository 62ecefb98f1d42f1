package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crosslister/internal/config"
	"crosslister/internal/consumer"
	"crosslister/internal/database"
	"crosslister/internal/handler"
	"crosslister/internal/middleware"
	"crosslister/internal/monitor"
	"crosslister/internal/platform"
	"crosslister/internal/redis"
	"crosslister/internal/repository"
	"crosslister/internal/service/orchestrator"
	"crosslister/internal/service/reconciler"
	"crosslister/internal/service/sales"
	internalutils "crosslister/internal/utils"
	"crosslister/pkg/breaker"
	"crosslister/pkg/limiter"
	"crosslister/pkg/lock"
	"crosslister/pkg/log"
	"crosslister/pkg/queue"
	"crosslister/pkg/retry"
	"crosslister/pkg/snowflake"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}
	config.GlobalConfig = cfg

	logConfig := log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}
	log.Init(logConfig)

	// database
	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	db := database.GetDB()
	if err := database.AutoMigrate(db); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to migrate database")
	}
	if err := database.CreateIndexes(db); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("Failed to create indexes")
	}

	// redis
	if err := redis.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()
	redisClient := redis.GetClient()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// tracing
	var tracer *monitor.Tracer
	if cfg.Tracing.Enabled {
		tracerConfig := monitor.DefaultTracerConfig()
		if cfg.Tracing.ServiceName != "" {
			tracerConfig.ServiceName = cfg.Tracing.ServiceName
		}
		if cfg.Tracing.Endpoint != "" {
			tracerConfig.JaegerEndpoint = cfg.Tracing.Endpoint
		}
		tracerConfig.SamplingRate = cfg.Tracing.SampleRate
		tracerConfig.Enabled = true
		tracer, err = monitor.NewTracer(tracerConfig)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Warn("Failed to initialize tracer, continuing without tracing")
			tracer = nil
		} else {
			defer tracer.Shutdown(context.Background())
		}
	}

	// metrics
	metrics := monitor.NewMetricsCollector()
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	metrics.StartSystemMetricsCollection(metricsCtx)

	// platform adapters
	registry, err := platform.NewRegistry(cfg.Platforms)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to build platform registry")
	}

	// per-platform rate limits and retry policies from config
	rateLimiter := limiter.NewPlatformLimiter()
	policies := make(map[string]*retry.Policy)
	for name, pc := range cfg.Platforms {
		if !pc.Enabled {
			continue
		}
		rateLimiter.Configure(name, limiter.Config{
			RequestsPerMinute: pc.RequestsPerMinute,
			BurstLimit:        pc.BurstLimit,
		})
		policy := retry.NewPolicy(pc.MaxRetries, pc.BackoffFactor)
		policy.Retryable = platform.RetryableStatuses(pc.RetryOnStatus)
		policies[name] = policy
	}

	breakers := breaker.NewManager(breaker.Config{
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to breaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			log.WithFields(map[string]interface{}{
				"platform": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	locker := lock.NewListingLocker(redisClient, 30*time.Second)

	idGenerator, err := snowflake.NewIDGenerator(cfg.Global.NodeID)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create ID generator")
	}

	// sale event queue
	saleEvents, err := queue.NewMemoryQueue(nil)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create sale event queue")
	}
	defer saleEvents.Close()

	// repositories
	listingRepo := repository.NewListingRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	divergenceRepo := repository.NewDivergenceRepository(db)

	// services
	orch := orchestrator.NewOrchestrator(registry, listingRepo, rateLimiter, breakers, policies, locker, orchestrator.Config{
		MaxWorkers:       cfg.Global.MaxWorkers,
		OperationTimeout: cfg.Global.OperationTimeout,
		MaxPhotos:        cfg.Global.MaxPhotosPerListing,
		Metrics:          metrics,
		Tracer:           tracer,
	})

	rec := reconciler.NewReconciler(registry, listingRepo, divergenceRepo, rateLimiter, policies, locker, redisClient, reconciler.Config{
		Interval:   cfg.Global.SyncInterval,
		Mode:       cfg.Global.ConflictResolution,
		Precedence: cfg.Global.PlatformPrecedence,
		BatchSize:  cfg.Global.BatchSize,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	rec.Start()
	defer rec.Stop()

	aggregator := sales.NewAggregator(registry, saleRepo, rateLimiter, policies, saleEvents, metrics)

	// sale consumer keeps local quantities in step with recorded sales
	saleConsumer := consumer.NewSaleConsumer(listingRepo, locker, saleEvents)
	if err := saleConsumer.Start(context.Background()); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to start sale consumer")
	}
	defer saleConsumer.Stop()

	router := setupRouter(cfg, orch, rec, aggregator, listingRepo, divergenceRepo, locker, idGenerator)

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	orch orchestrator.Orchestrator,
	rec reconciler.Reconciler,
	aggregator sales.Aggregator,
	listingRepo repository.ListingRepository,
	divergenceRepo repository.DivergenceRepository,
	locker *lock.ListingLocker,
	idGenerator *snowflake.IDGenerator,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	if cfg.Security.APIRateLimit.Enabled {
		router.Use(middleware.IPRateLimit(float64(cfg.Security.APIRateLimit.RPS), cfg.Security.APIRateLimit.Burst))
	}

	router.GET("/health", healthCheck)
	router.GET("/ping", ping)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// JWT manager for the token endpoint and the auth middleware
	jwtManager := internalutils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expire,
		cfg.Security.JWT.RefreshTTL,
	)

	// handlers
	authHandler := handler.NewAuthHandler(jwtManager, cfg.Security.APIClients, cfg.Security.JWT.Expire)
	listingHandler := handler.NewListingHandler(orch, listingRepo, idGenerator, cfg.Global.DefaultCurrency)
	syncHandler := handler.NewSyncHandler(rec, divergenceRepo, listingRepo, locker)
	salesHandler := handler.NewSalesHandler(aggregator, cfg.Global.SalesWindowDays)

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/health", healthCheck)
			v1.GET("/ping", ping)

			// Public auth routes
			authGroup := v1.Group("/auth")
			{
				authGroup.POST("/token", authHandler.Token)
				authGroup.POST("/refresh", authHandler.RefreshToken)
			}

			tokenValidator := func(token string) (*middleware.UserInfo, error) {
				claims, err := jwtManager.ValidateToken(token)
				if err != nil {
					return nil, err
				}
				return &middleware.UserInfo{
					ID:   claims.UserID,
					Role: claims.Role,
				}, nil
			}

			protected := v1.Group("")
			protected.Use(middleware.Auth(tokenValidator))
			{
				// Listing routes fan out to the marketplaces
				listings := protected.Group("/listings")
				listings.Use(middleware.ListingTimeout(2 * time.Minute))
				{
					listings.POST("", listingHandler.Create)
					listings.GET("", listingHandler.List)
					listings.GET("/:id", listingHandler.Get)
					listings.PUT("/:id", listingHandler.Update)
					listings.DELETE("/:id", listingHandler.Delete)
				}

				// Reconciliation
				protected.POST("/sync", middleware.SyncRateLimit(), syncHandler.TriggerSync)
				protected.GET("/divergences", syncHandler.ListDivergences)
				protected.POST("/divergences/:id/resolve", syncHandler.ResolveDivergence)

				// Sales
				protected.GET("/sales/report", salesHandler.Report)

				// Platform health
				protected.GET("/platforms/health", platformHealth(orch))
			}
		}
	}

	return router
}

// platformHealth probes every registered platform adapter
func platformHealth(orch orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		results := orch.Health(c.Request.Context())

		platforms := make(map[string]interface{}, len(results))
		healthy := true
		for name, err := range results {
			if err != nil {
				healthy = false
				platforms[name] = map[string]interface{}{
					"healthy": false,
					"error":   err.Error(),
				}
			} else {
				platforms[name] = map[string]interface{}{
					"healthy": true,
				}
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"healthy":   healthy,
			"platforms": platforms,
			"timestamp": time.Now().Unix(),
		})
	}
}

func healthCheck(c *gin.Context) {
	dbHealth := checkDatabase()

	redisHealth := checkRedis()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
		"services": map[string]interface{}{
			"database": dbHealth,
			"redis":    redisHealth,
		},
	}

	if !dbHealth["healthy"].(bool) || !redisHealth["healthy"].(bool) {
		health["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}

func checkDatabase() map[string]interface{} {
	if err := database.Health(); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}

func checkRedis() map[string]interface{} {
	if err := redis.Health(); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}
