package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"visitrack/internal/config"
	handlers "visitrack/internal/handlers/shared"
	"visitrack/internal/middleware"
	"visitrack/internal/repositories/mongodb"
	"visitrack/internal/services"
	"visitrack/pkg/broker"
	"visitrack/pkg/cache"
	"visitrack/pkg/database"
	"visitrack/pkg/logger"
	"visitrack/pkg/maps"
	"visitrack/pkg/ml"
	"visitrack/pkg/olap"
	"visitrack/pkg/storage"
	"visitrack/pkg/websocket"
	"visitrack/routes"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		Caller:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	mongo, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongo.Close()

	if cfg.Database.RunMigrations {
		if err := database.NewMigrator(mongo.Database, appLogger).Up(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to run migrations")
		}
	}

	// Cache and queue backend. Without Redis everything stays in process.
	var (
		redisCache   *cache.RedisCache
		cacheService services.CacheService
		queueBackend services.QueueBackend
	)
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisCache.Close()
		cacheService = services.NewCacheService(redisCache, appLogger, cfg.Redis.KeyPrefix, cfg.Analytics.CacheTTL)
	} else {
		cacheService = services.NewMemoryCacheService(cfg.Analytics.CacheTTL)
	}

	switch {
	case cfg.Ingestion.QueueBackend == "redis" && redisCache != nil:
		queueBackend = services.NewRedisQueueBackend(redisCache, cfg.Redis.KeyPrefix+":"+cfg.Ingestion.QueueKey)
	default:
		if cfg.Ingestion.QueueBackend == "redis" {
			appLogger.Warn("Redis queue backend requested but Redis is disabled, using memory")
		}
		queueBackend = services.NewMemoryQueueBackend()
	}

	// Optional downstream sinks
	var sink olap.EventSink = olap.NopSink{}
	if cfg.ClickHouse.Enabled {
		chSink, err := olap.NewClickHouseSink(ctx, &olap.ClickHouseConfig{
			Addr:        cfg.ClickHouse.Addr,
			Database:    cfg.ClickHouse.Database,
			Username:    cfg.ClickHouse.Username,
			Password:    cfg.ClickHouse.Password,
			Table:       cfg.ClickHouse.Table,
			DialTimeout: cfg.ClickHouse.DialTimeout,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer chSink.Close()
		sink = chSink
	}

	var publisher broker.Publisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := broker.NewKafkaPublisher(&broker.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			ClientID:     cfg.Kafka.ClientID,
			DeliveryWait: cfg.Kafka.DeliveryWait,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to create Kafka publisher")
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	var reverseGeocoder maps.ReverseGeocoder
	if cfg.Maps.Enabled() {
		provider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleMaps.APIKey)
		if err != nil {
			appLogger.WithError(err).Warn("Reverse geocoding disabled")
		} else {
			reverseGeocoder = provider
		}
	}

	storageProvider, err := newStorageProvider(ctx, cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize export storage")
	}

	hub := websocket.NewHub(appLogger)

	// Repositories
	db := mongo.Database
	visitorRepo := mongodb.NewVisitorRepository(db)
	sessionRepo := mongodb.NewSessionRepository(db)
	eventRepo := mongodb.NewEventRepository(db)
	presenceRepo := mongodb.NewPresenceRepository(db)
	pageMetricsRepo := mongodb.NewPageMetricsRepository(db)
	funnelRepo := mongodb.NewFunnelRepository(db, cacheService)
	segmentRepo := mongodb.NewSegmentRepository(db)
	goalRepo := mongodb.NewGoalRepository(db)

	// Services
	geoService := services.NewGeolocationService(cfg.Geo, cacheService, reverseGeocoder, appLogger)
	locker := services.NewUserLocker(cacheService, cfg.Redis.LockTTL, appLogger)
	classifier := ml.NewHeuristicClassifier(
		cfg.ML.SessionModel.Version,
		cfg.ML.SessionModel.Enabled,
		cfg.ML.SessionModel.Threshold,
	)
	if path := cfg.ML.SessionModel.ModelPath; path != "" {
		model, err := ml.LoadSessionModel(path)
		if err != nil {
			appLogger.WithError(err).WithField("path", path).Warn("Falling back to built-in session model")
		} else {
			classifier.UseModel(model)
		}
	}
	labeler := services.NewSessionLabeler(classifier, eventRepo, appLogger)

	visitorService := services.NewVisitorService(
		visitorRepo, sessionRepo, eventRepo, presenceRepo, pageMetricsRepo,
		geoService, locker, labeler, hub,
		services.TransitionPolicy{
			SessionTimeout:   cfg.Analytics.SessionTimeout,
			OfflineThreshold: cfg.Analytics.OfflineThreshold,
		},
		cfg.Ingestion.EventIDPrefix,
		appLogger,
	)
	ingestionService := services.NewIngestionService(
		eventRepo, sessionRepo, pageMetricsRepo, geoService, queueBackend, sink, publisher,
		services.IngestionOptions{
			EventIDPrefix:     cfg.Ingestion.EventIDPrefix,
			BatchMax:          cfg.Ingestion.BatchMax,
			FlushSize:         cfg.Ingestion.FlushSize,
			FlushTimeout:      cfg.Ingestion.FlushTimeout,
			BackgroundTimeout: cfg.Ingestion.BackgroundTimeout,
		},
		appLogger,
	)
	analyticsService := services.NewAnalyticsService(visitorRepo, sessionRepo, eventRepo, pageMetricsRepo, cacheService, cfg.Analytics, appLogger)
	funnelService := services.NewFunnelService(funnelRepo, eventRepo, appLogger)
	segmentService := services.NewSegmentService(segmentRepo, visitorRepo, appLogger)
	goalService := services.NewGoalService(goalRepo, funnelRepo)
	maintenanceService := services.NewMaintenanceService(sessionRepo, appLogger)
	exportService := services.NewExportService(eventRepo, storageProvider, cfg.Storage.Prefix, cfg.Storage.URLExpiry, appLogger)

	reaper := services.NewPresenceReaper(
		sessionRepo, visitorRepo, presenceRepo, eventRepo, labeler, hub,
		services.ReaperConfig{
			Interval:       cfg.Analytics.ReaperInterval,
			Inactivity:     cfg.Analytics.ReaperInactivity,
			PresenceExpiry: cfg.Analytics.PresenceExpiry,
		},
		appLogger,
	)
	liveMetrics := services.NewLiveMetricsPublisher(analyticsService, hub, cfg.WebSocket.BroadcastInterval, appLogger)

	// Background workers
	var workers sync.WaitGroup
	runWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(ctx)
		}()
	}
	ingestionService.Start(ctx)
	runWorker(reaper.Run)
	runWorker(hub.Run)
	if cfg.WebSocket.Enabled {
		runWorker(liveMetrics.Run)
	}

	// Initialize Gin router
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		appLogger.WithError(err).Fatal("Invalid trusted proxies")
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))

	routes.SetupRoutes(router, &routes.Handlers{
		Visitor:   handlers.NewVisitorHandler(visitorService),
		Event:     handlers.NewEventHandler(ingestionService),
		Analytics: handlers.NewAnalyticsHandler(analyticsService),
		Funnel:    handlers.NewFunnelHandler(funnelService),
		Segment:   handlers.NewSegmentHandler(segmentService),
		Goal:      handlers.NewGoalHandler(goalService),
		Admin:     handlers.NewAdminHandler(maintenanceService, exportService),
		LiveFeed:  websocket.NewHandler(hub, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, cfg.WebSocket.AllowedOrigins),
	}, cfg, healthChecks(mongo, redisCache))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(map[string]interface{}{
			"port":        cfg.App.Port,
			"environment": cfg.App.Environment,
		}).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Error("Server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("HTTP server shutdown failed")
	}
	// Drain queued events and background side effects before closing stores.
	if err := ingestionService.Stop(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Ingestion drain incomplete")
	}
	workers.Wait()
	appLogger.Info("Server exited")
}

func newStorageProvider(ctx context.Context, cfg *config.StorageConfig) (storage.StorageProvider, error) {
	switch cfg.Provider {
	case "aws", "s3":
		return storage.NewAWSS3Storage(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.AWS.CDNDomain)
	case "gcp", "gcs":
		return storage.NewGCPStorage(ctx, cfg.GCP.Bucket, cfg.GCP.CredentialsFile, cfg.GCP.CDNDomain)
	default:
		return storage.NewLocalStorage(cfg.Local.BasePath, cfg.Local.BaseURL)
	}
}

func healthChecks(mongo *database.MongoDB, redisCache *cache.RedisCache) routes.HealthCheck {
	checks := routes.HealthCheck{
		"mongodb": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return mongo.Ping(ctx)
		},
	}
	if redisCache != nil {
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisCache.Ping(ctx)
		}
	}
	return checks
}
