package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-ledger/config"
	"stock-ledger/internal/api"
	"stock-ledger/internal/broker"
	"stock-ledger/internal/redisclient"
	"stock-ledger/internal/service"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"
	"stock-ledger/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock ledger",
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Store.Backend),
		zap.String("timezone", cfg.Business.TimeZone))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(util.TracerOptions{
			ServiceName: "stock-ledger",
			Endpoint:    cfg.Observ.JaegerEndpoint,
			Environment: cfg.Server.Env,
			SampleRatio: cfg.Observ.TraceSampleRatio,
		})
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	var redisClient *redisclient.Client
	if cfg.Store.Backend == config.BackendRedis || cfg.Kafka.Enabled {
		rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rc.Close()
		redisClient = rc
		logger.Info("Redis connected")
	}

	var docs store.DocumentStore
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		docs = db
		logger.Info("Database connected")
	case config.BackendRedis:
		docs = redisClient
	case config.BackendFile:
		fs, err := store.NewFileStore(cfg.Store.DataDir)
		if err != nil {
			logger.Fatal("Failed to open data dir", zap.Error(err))
		}
		docs = fs
	case config.BackendMemory:
		docs = store.NewMemoryStore()
	default:
		logger.Fatal("Unknown store backend", zap.String("backend", cfg.Store.Backend))
	}

	var publisher service.Publisher = service.NopPublisher{}
	var alertWorker *worker.AlertWorker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStock)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicStock))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStock, cfg.Kafka.ConsumerGroup)
		alertWorker = worker.NewAlertWorker(consumer, redisClient)
		go func() {
			if err := alertWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Alert worker error", zap.Error(err))
			}
		}()
	}

	stockService := service.NewStockService(store.NewTables(docs), publisher, cfg.Business.Location())
	analysisService := service.NewAnalysisService(stockService, service.AnalysisConfig{
		CutoffA:       cfg.Business.ABCCutoffA,
		CutoffB:       cfg.Business.ABCCutoffB,
		DeadStockDays: cfg.Business.DeadStockDays,
		RankingLimit:  cfg.Business.RankingLimit,
	})

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if res, err := stockService.Reconcile(startupCtx); err != nil {
		logger.Error("Startup reconciliation failed, will retry on next request", zap.Error(err))
	} else {
		logger.Info("Startup reconciliation done",
			zap.Int("applied", len(res.Applied)),
			zap.Int("failed", len(res.Failed)))
	}
	startupCancel()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(stockService, analysisService)
	if alertWorker != nil {
		handler.WithAlerts(redisClient)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if alertWorker != nil {
		_ = alertWorker.Stop()
	}

	logger.Info("Server exited")
}
