package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hatewatch/internal/classifier"
	"hatewatch/internal/config"
	"hatewatch/internal/handler"
	"hatewatch/internal/ingest"
	"hatewatch/internal/lexicon"
	"hatewatch/internal/metrics"
	"hatewatch/internal/middleware"
	"hatewatch/internal/ml_client"
	"hatewatch/internal/notify"
	"hatewatch/internal/progress"
	"hatewatch/internal/repository"
	"hatewatch/internal/service"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting hatewatch...", zap.String("database", cfg.Database.Driver))

	// Database connection
	db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, cfg.Database.MaxOpenConns, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.MigrateDB(db, cfg.Database.Driver, cfg.Database.Migrations, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	tweets := repository.NewTweetRepository(db, logger)

	m := metrics.New()

	// Classification pipeline
	mlClient := ml_client.NewClient(ml_client.Config{
		URL:               cfg.ML.URL,
		Timeout:           cfg.ML.Timeout,
		RequestsPerSecond: cfg.ML.RequestsPerSecond,
	})

	var extraTerms []string
	if cfg.Lexicon.TermsFile != "" {
		extraTerms, err = lexicon.LoadTerms(cfg.Lexicon.TermsFile)
		if err != nil {
			logger.Fatal("Failed to load lexicon terms", zap.String("path", cfg.Lexicon.TermsFile), zap.Error(err))
		}
	}
	detector := lexicon.Default(extraTerms...)
	logger.Info("Lexicon loaded", zap.Int("terms", len(detector.Terms())))

	pipeline := classifier.NewPipeline(mlClient, mlClient, detector, classifier.Options{
		BatchSize:  cfg.Classifier.BatchSize,
		Threshold:  cfg.Classifier.Threshold,
		Categories: cfg.Classifier.Categories,
		Metrics:    m,
		Logger:     logger,
	})

	// Progress store
	var store progress.Store
	switch cfg.Progress.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := progress.NewRedisClient(ctx, cfg.Progress.RedisAddr, cfg.Progress.RedisPassword, cfg.Progress.RedisDB)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Progress.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		store = progress.NewRedisStore(rdb, cfg.Progress.TTL)
	default:
		store = progress.NewMemoryStore()
	}

	// Optional batch notifications
	var notifier ingest.Notifier
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, cfg.Notify.APIEndpoint, nil, logger)
		if err != nil {
			logger.Warn("Failed to initialize Telegram notifier, continuing without it", zap.Error(err))
		} else {
			notifier = tg
		}
	}

	// Ingestion
	driver := ingest.NewDriver(tweets, pipeline, store, ingest.NewExporter(cfg.Ingest.ExportDir), notifier, m, ingest.DriverConfig{
		ChunkSize:        cfg.Ingest.ChunkSize,
		WriteBatchSize:   cfg.Ingest.WriteBatchSize,
		SampleBytes:      cfg.Ingest.SampleBytes,
		FallbackEncoding: cfg.Ingest.FallbackEncoding,
	}, logger)
	queue := ingest.NewQueue(driver, cfg.Ingest.Workers, cfg.Ingest.QueueSize, m, logger)

	ingestion := service.NewIngestionService(cfg.Ingest.UploadDir, queue, store, logger)
	reports := service.NewReportService(tweets, logger)

	apiHandler := handler.NewHandler(ingestion, reports, pipeline, tweets, mlClient, handler.Options{
		Metrics:        m.Handler(),
		Auth:           middleware.AuthMiddleware([]byte(cfg.Auth.JWTSecret), logger),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, logger)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.RecoveryMiddleware(logger),
	)
	apiHandler.RegisterRoutes(router)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("address", serverAddr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := queue.Shutdown(ctx); err != nil {
		logger.Warn("Ingestion queue did not drain before timeout", zap.Error(err))
	}

	logger.Info("Server exited")
}
