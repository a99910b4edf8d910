package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/analytics"
	"github.com/faqminer/backend/internal/api/handlers"
	"github.com/faqminer/backend/internal/cache/redis"
	"github.com/faqminer/backend/internal/feedback"
	"github.com/faqminer/backend/internal/ingestion"
	"github.com/faqminer/backend/internal/kg/builder"
	"github.com/faqminer/backend/internal/kg/neo4j"
	"github.com/faqminer/backend/internal/llm"
	"github.com/faqminer/backend/internal/mail"
	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/internal/middleware/ratelimit"
	"github.com/faqminer/backend/internal/middleware/security"
	"github.com/faqminer/backend/internal/middleware/validation"
	"github.com/faqminer/backend/internal/monitoring"
	"github.com/faqminer/backend/internal/scoring"
	"github.com/faqminer/backend/internal/settings"
	"github.com/faqminer/backend/internal/storage"
	"github.com/faqminer/backend/internal/storage/sqlite"
	"github.com/faqminer/backend/internal/vector/zilliz"
	"github.com/faqminer/backend/pkg/config"
	appLogger "github.com/faqminer/backend/pkg/logger"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting FAQ Miner API Server")
	metrics.Init()

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	pingers := map[string]storage.Pinger{"sqlite": sqliteClient}

	// Optional backends stay nil when disabled.
	var (
		reportCache  analytics.Cache
		invalidator  handlers.ReportInvalidator
		embedCache   llm.EmbeddingCache
		patternGraph builder.PatternGraph
		similarity   *ingestion.VectorSimilarity
	)

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		reportCache = redisClient
		invalidator = redisClient
		embedCache = redisClient
		pingers["redis"] = redisClient
	}

	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(startCtx,
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
			cfg.Neo4j.Database,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
		}
		defer neo4jClient.Close(context.Background())

		if err := neo4jClient.EnsureConstraints(startCtx); err != nil {
			appLogger.Warn("Failed to ensure graph constraints", zap.Error(err))
		}
		patternGraph = neo4jClient
		pingers["neo4j"] = neo4jClient
	}

	if cfg.Zilliz.Enabled {
		if strings.TrimSpace(cfg.LLM.APIKey) == "" {
			appLogger.Fatal("Similarity lookup needs llm.apiKey for embeddings")
		}

		zillizClient, err := zilliz.NewClient(startCtx,
			cfg.Zilliz.Endpoint,
			cfg.Zilliz.APIKey,
			cfg.Zilliz.CollectionName,
			cfg.Zilliz.VectorDim,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Zilliz client", zap.Error(err))
		}
		defer zillizClient.Close()

		err = zillizClient.EnsureCollection(startCtx)
		if err != nil {
			appLogger.Fatal("Failed to prepare collection", zap.Error(err))
		}

		llmClient := llm.NewClient(
			cfg.LLM.APIKey,
			cfg.LLM.EmbeddingModel,
			time.Duration(cfg.LLM.TimeoutSec)*time.Second,
			embedCache,
		)
		similarity = ingestion.NewVectorSimilarity(llmClient, zillizClient)
		pingers["zilliz"] = zillizClient
	}

	settingsService := settings.NewService(sqliteClient, settings.DefaultsFromConfig(cfg), cfg.Monitoring.SettingsCacheTTL)
	calculator := scoring.NewCalculator(settingsService)

	feedbackProcessor := feedback.NewProcessor(sqliteClient, sqliteClient, calculator)

	var index ingestion.SimilarityIndex
	if similarity != nil {
		index = similarity
	}
	ingestionProcessor := ingestion.NewProcessor(sqliteClient, sqliteClient, calculator, index, patternGraph)
	aggregator := analytics.NewAggregator(sqliteClient, sqliteClient, nil, reportCache, analytics.Config{
		ROI: analytics.ROIConstants{
			TicketHandlingMinutes: cfg.ROI.TicketHandlingMinutes,
			CostPerTicket:         cfg.ROI.CostPerTicket,
		},
		CacheTTL: cfg.Redis.CacheTTL,
	})

	healthChecker := monitoring.NewHealthChecker(monitoring.HealthDeps{
		Analytics:    aggregator,
		Entries:      sqliteClient,
		Pingers:      pingers,
		Thresholds:   settingsService,
		ProbeTimeout: cfg.Monitoring.ProbeTimeout,
	})

	var notifier *monitoring.Notifier
	if strings.TrimSpace(cfg.Mail.APIKey) != "" {
		mailClient, err := mail.NewClient(mail.Config{
			APIKey:     cfg.Mail.APIKey,
			BaseURL:    cfg.Mail.BaseURL,
			FromEmail:  cfg.Mail.FromEmail,
			FromName:   cfg.Mail.FromName,
			Timeout:    time.Duration(cfg.Mail.TimeoutSec) * time.Second,
			MaxRetries: cfg.Mail.MaxRetries,
		})
		if err != nil {
			appLogger.Fatal("Failed to create mail client", zap.Error(err))
		}
		notifier = monitoring.NewNotifier(mailClient, settingsService, cfg.Monitoring.NotifyTimeout)
	} else {
		appLogger.Warn("Mail API key not set, alert notifications disabled")
	}

	monitor := monitoring.NewMonitor(
		monitoring.NewAlertStore(cfg.Monitoring.MaxAlerts),
		healthChecker,
		aggregator,
		settingsService,
		notifier,
	)

	scheduler := monitoring.NewScheduler(monitoring.RealClock())
	err = monitor.Schedule(scheduler, cfg.Monitoring.HealthCheckInterval, cfg.Monitoring.PerformanceInterval)
	if err != nil {
		appLogger.Fatal("Failed to schedule monitoring tasks", zap.Error(err))
	}

	if patternGraph != nil || similarity != nil {
		var publishedIndex builder.PublishedIndex
		if similarity != nil {
			publishedIndex = similarity
		}
		resync := builder.NewBuilder(sqliteClient, sqliteClient, patternGraph, publishedIndex)
		if err := scheduler.Register(builder.TaskName, cfg.Monitoring.SyncInterval, resync.Run); err != nil {
			appLogger.Fatal("Failed to schedule graph sync", zap.Error(err))
		}
	}

	runCtx, stopTasks := context.WithCancel(context.Background())
	defer stopTasks()
	scheduler.Start(runCtx)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		SkipPaths:            []string{"/metrics", "/api/v1/health", "/ws"},
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	handlers.RegisterRoutes(app, handlers.Handlers{
		Feedback:    handlers.NewFeedbackHandler(feedbackProcessor),
		Ingestion:   handlers.NewIngestionHandler(ingestionProcessor),
		Analytics:   handlers.NewAnalyticsHandler(aggregator, invalidator),
		Monitoring:  handlers.NewMonitoringHandler(monitor, scheduler),
		Settings:    handlers.NewSettingsHandler(settingsService),
		AlertStream: handlers.NewAlertStreamHandler(monitor.Store()),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	scheduler.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
