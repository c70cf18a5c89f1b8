package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	commerceapp "github.com/storefleet/backend/internal/application/commerce"
	identityapp "github.com/storefleet/backend/internal/application/identity"
	registryapp "github.com/storefleet/backend/internal/application/registry"
	"github.com/storefleet/backend/internal/infrastructure/auth"
	"github.com/storefleet/backend/internal/infrastructure/config"
	"github.com/storefleet/backend/internal/infrastructure/logger"
	"github.com/storefleet/backend/internal/infrastructure/monitor"
	"github.com/storefleet/backend/internal/infrastructure/persistence"
	"github.com/storefleet/backend/internal/infrastructure/storage"
	"github.com/storefleet/backend/internal/infrastructure/storefront"
	"github.com/storefleet/backend/internal/infrastructure/telemetry"
	"github.com/storefleet/backend/internal/interfaces/http/handler"
	"github.com/storefleet/backend/internal/interfaces/http/middleware"
	"github.com/storefleet/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting StoreFleet Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("kv_driver", cfg.Database.Driver),
	)

	ctx := context.Background()

	// Initialize telemetry. Every provider degrades to a no-op when
	// telemetry is disabled, so the wiring below is unconditional.
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down log provider", zap.Error(err))
		}
	}()

	// Re-route application logs through the OTEL bridge so they reach the
	// collector alongside traces and metrics.
	if cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          zapcore.InfoLevel,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

	// Continuous profiling. Must start before span profiles are enabled so
	// profile IDs can be attached to spans.
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Profiler.Enabled,
		ServerAddress:       cfg.Profiler.ServerAddress,
		ApplicationName:     cfg.Profiler.ApplicationName,
		BasicAuthUser:       cfg.Profiler.BasicAuthUser,
		BasicAuthPassword:   cfg.Profiler.BasicAuthPassword,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	if cfg.Telemetry.Enabled && cfg.Profiler.Enabled {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	// Initialize the key-value store backing the registry
	var kv persistence.KVStore
	switch cfg.Database.Driver {
	case "redis":
		redisKV, err := persistence.NewRedisKV(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisKV.Close(); err != nil {
				log.Error("Error closing Redis connection", zap.Error(err))
			}
		}()
		kv = redisKV
		log.Info("Using Redis registry storage", zap.String("addr", cfg.Redis.Addr()))

	case "sqlite", "postgres":
		gormLogger := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
		db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLogger)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()

		tracingPlugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        cfg.Database.Driver,
		}, log)
		if err := tracingPlugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}

		dbMetrics, err := telemetry.NewDBMetrics(meterProvider.Meter("storefleet/storage"), telemetry.DBMetricsConfig{
			Enabled: cfg.Telemetry.Enabled,
		}, log)
		if err != nil {
			log.Warn("Failed to initialize database metrics", zap.Error(err))
		} else {
			if err := db.DB.Use(telemetry.NewDBMetricsPlugin(dbMetrics, log)); err != nil {
				log.Warn("Failed to register database metrics plugin", zap.Error(err))
			}
			if sqlDB, err := db.DB.DB(); err == nil {
				dbMetrics.SetSQLDB(sqlDB)
				dbMetrics.StartPoolStatsCollection(ctx)
				defer dbMetrics.Stop()
			}
		}

		gormKV := persistence.NewGormKV(db.DB)
		if err := gormKV.Migrate(); err != nil {
			log.Fatal("Failed to migrate registry storage", zap.Error(err))
		}
		kv = gormKV
		log.Info("Using database registry storage", zap.String("driver", cfg.Database.Driver))

	default:
		kv = persistence.NewMemoryKV()
		log.Warn("Using in-memory registry storage, registered stores will not survive restarts")
	}

	// Initialize repositories
	storeRepo := persistence.NewKVStoreRepository(kv)

	// Fleet metrics observe the registry periodically in addition to the
	// counters recorded inline by the services.
	fleetMetrics, err := telemetry.NewFleetMetrics(telemetry.FleetMetricsConfig{
		Meter:          meterProvider.Meter("storefleet/fleet"),
		Logger:         log,
		StatusProvider: telemetry.NewRegistryStatusProvider(storeRepo),
	})
	if err != nil {
		log.Fatal("Failed to initialize fleet metrics", zap.Error(err))
	}
	fleetMetrics.StartPeriodicCollection(ctx, 0)
	defer fleetMetrics.Stop()

	// Initialize services
	storeService := registryapp.NewStoreService(storeRepo, fleetMetrics, log)
	storefronts := storefront.NewFactory()

	healthMonitor := monitor.NewHealthMonitor(monitor.Config{
		Interval:     cfg.Monitor.Interval,
		ProbeTimeout: cfg.Monitor.ProbeTimeout,
		ProbeRetries: cfg.Monitor.ProbeRetries,
	}, storeService, storefronts, log)

	aggregationService := commerceapp.NewAggregationService(storeRepo, storefronts, fleetMetrics, log)
	couponService := commerceapp.NewCouponService(storeRepo, storefronts, fleetMetrics, log)

	var archive commerceapp.ArchiveStorage
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3ArchiveStorage(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize archive storage", zap.Error(err))
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			log.Warn("Archive bucket not ready, export uploads will fail until it is",
				zap.Error(err))
		}
		archive = s3Archive
		log.Info("Export archive uploads enabled",
			zap.String("endpoint", cfg.Storage.Endpoint),
			zap.String("bucket", cfg.Storage.Bucket),
		)
	}
	exportService := commerceapp.NewExportService(aggregationService, archive, commerceapp.ExportConfig{
		MaxPages:           cfg.Export.MaxPages,
		PageSize:           cfg.Export.PageSize,
		DownloadExpiration: cfg.Storage.PresignExpiration,
	}, fleetMetrics, log)

	credentials, err := auth.NewAdminCredentials(cfg.Auth)
	if err != nil {
		log.Fatal("Failed to load admin credentials", zap.Error(err))
	}
	jwtService := auth.NewJWTService(cfg.JWT)

	var tokenBlacklist auth.TokenBlacklist
	if cfg.Database.Driver == "redis" {
		redisBlacklist, err := auth.NewRedisTokenBlacklist(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to initialize token blacklist", zap.Error(err))
		}
		tokenBlacklist = redisBlacklist
	} else {
		tokenBlacklist = auth.NewInMemoryTokenBlacklist()
	}

	authService := identityapp.NewAuthService(credentials, jwtService, tokenBlacklist, log)

	// Initialize handlers
	storeHandler := handler.NewStoreHandler(storeService, healthMonitor, storefronts)
	orderHandler := handler.NewOrderHandler(aggregationService, exportService)
	productHandler := handler.NewProductHandler(aggregationService)
	couponHandler := handler.NewCouponHandler(aggregationService, couponService)
	authHandler := handler.NewAuthHandler(authService)
	monitorStreamHandler := handler.NewMonitorStreamHandler(storeService, healthMonitor,
		handler.WithStreamLogger(log),
		handler.WithStreamMetrics(fleetMetrics),
	)

	// Setup gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanEnrichment())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.ProfilingWithConfig(middleware.ProfilingConfig{
		Enabled:   cfg.Profiler.Enabled,
		SkipPaths: []string{"/health"},
	}))

	// Health check endpoint (no auth required)
	engine.GET("/health", healthHandler(kv))

	// Setup router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.TokenBlacklist = tokenBlacklist
	jwtConfig.Disabled = cfg.Auth.Disabled
	jwtConfig.Logger = log
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))
	if cfg.Auth.Disabled {
		log.Warn("Authentication is disabled, all endpoints are public")
	}

	authRoutes := router.NewDomainGroup("auth", "/auth").
		POST("/login", authHandler.Login).
		POST("/refresh", authHandler.RefreshToken).
		POST("/logout", authHandler.Logout)
	if cfg.HTTP.AuthRateLimitEnabled {
		authLimiter := middleware.NewRateLimiter(cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow)
		authRoutes.Use(middleware.AuthRateLimit(authLimiter))
	}

	registryRoutes := router.NewDomainGroup("registry", "/stores").
		GET("", storeHandler.List).
		POST("", storeHandler.Create).
		GET("/:id", storeHandler.GetByID).
		PUT("/:id", storeHandler.Update).
		DELETE("/:id", storeHandler.Delete).
		POST("/:id/toggle", storeHandler.Toggle).
		POST("/:id/check", storeHandler.Check).
		GET("/:id/status", storeHandler.Status)

	orderRoutes := router.NewDomainGroup("orders", "/orders").
		GET("", orderHandler.List).
		POST("/export", orderHandler.Export)

	productRoutes := router.NewDomainGroup("products", "/products").
		GET("", productHandler.List)

	couponRoutes := router.NewDomainGroup("coupons", "/coupons").
		GET("", couponHandler.List).
		POST("", couponHandler.Create)

	monitorRoutes := router.NewDomainGroup("monitor", "/monitor").
		GET("/stream", monitorStreamHandler.Stream).
		GET("/stats", monitorStreamHandler.Stats)

	r.Register(authRoutes).
		Register(registryRoutes).
		Register(orderRoutes).
		Register(productRoutes).
		Register(couponRoutes).
		Register(monitorRoutes)

	r.Setup()

	// Start server
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Event stream responses stay open indefinitely. Disconnect those
	// clients first so the server can drain within the shutdown window.
	monitorStreamHandler.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := healthMonitor.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping health monitor", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler reports liveness of the process and reachability of the
// registry storage backend.
func healthHandler(kv persistence.KVStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := kv.Ping(c.Request.Context()); err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"time":    time.Now().Format(time.RFC3339),
				"storage": "error",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"time":    time.Now().Format(time.RFC3339),
			"storage": "ok",
		})
	}
}
