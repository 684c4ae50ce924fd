package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/settlement-service/cache"
	"github.com/yashrajoria/settlement-service/common/logger"
	"github.com/yashrajoria/settlement-service/config"
	"github.com/yashrajoria/settlement-service/controllers"
	"github.com/yashrajoria/settlement-service/database"
	"github.com/yashrajoria/settlement-service/kafka"
	aws_pkg "github.com/yashrajoria/settlement-service/pkg/aws"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/repository"
	"github.com/yashrajoria/settlement-service/routes"
	"github.com/yashrajoria/settlement-service/services"
	"go.uber.org/zap"
)

const serviceName = "settlement-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)

	var zlog *zap.Logger
	if cfg.CloudWatchEnabled && awsErr == nil {
		cw, cwErr := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, serviceName)
		if cwErr != nil {
			log.Printf("CloudWatch logs unavailable, logging to stdout only: %v", cwErr)
			zlog, err = logger.Initialize(cfg.AppEnv)
		} else {
			zlog, err = logger.InitializeWithWriter(cfg.AppEnv, cw)
		}
	} else {
		zlog, err = logger.Initialize(cfg.AppEnv)
	}
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if awsErr != nil {
		zlog.Warn("AWS config unavailable, SQS/SNS/S3/CloudWatch disabled", zap.Error(awsErr))
	}

	db, err := database.ConnectPostgres(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	store := repository.NewStore(db)

	// Providers
	var ps []providers.Provider
	if cfg.PaystackSecretKey != "" {
		ps = append(ps, providers.NewPaystackProvider(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.ProviderTimeout))
	}
	if cfg.StripeWebhookSecret != "" {
		ps = append(ps, providers.NewStripeProvider(cfg.StripeAPIKey, cfg.StripeWebhookSecret))
	}
	registry := providers.NewRegistry(ps...)

	// Post-commit side effects
	var metrics *aws_pkg.MetricsClient
	effects := services.SideEffects{}
	if awsErr == nil {
		metrics = aws_pkg.NewMetricsClient(awsCfg, "Settlement", cfg.CloudWatchEnabled)
		effects.Metrics = metrics
		if cfg.AuditBucket != "" {
			effects.Archiver = aws_pkg.NewPayloadArchiver(awsCfg, cfg.AuditBucket)
		}
	}

	switch cfg.EventBus {
	case "sns":
		if awsErr == nil && cfg.PaymentSNSTopicARN != "" {
			effects.Publisher = aws_pkg.NewPaymentEventPublisher(awsCfg, cfg.PaymentSNSTopicARN)
		} else {
			zlog.Warn("EVENT_BUS=sns but SNS is not configured, settlement events will not be published")
		}
	case "kafka":
		producer := kafka.NewPaymentEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic, zlog)
		defer producer.Close()
		effects.Publisher = producer
	}

	var viewCache services.ViewCache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zlog.Warn("Redis unavailable, settlement cache disabled", zap.Error(err))
		} else {
			defer rdb.Close() //nolint:errcheck
			sc := cache.NewSettlementCache(rdb, cfg.StatusCacheTTL)
			viewCache = sc
			effects.Cache = sc
		}
	}

	// Retry queue; a nil interface disables scheduling.
	var retryQueue *aws_pkg.RetryQueue
	var scheduledQueue services.RetryQueue
	if awsErr == nil && cfg.RetryQueueURL != "" {
		retryQueue = aws_pkg.NewRetryQueue(awsCfg, cfg.RetryQueueURL, zlog)
		scheduledQueue = retryQueue
	} else {
		zlog.Warn("RETRY_QUEUE_URL not set, failed events will only be retried on provider redelivery")
	}

	var recorder services.MetricsRecorder
	if metrics != nil {
		recorder = metrics
	}
	scheduler := services.NewRetryScheduler(scheduledQueue, services.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}, recorder, zlog)

	dispatcher := services.NewDispatcher(store, services.NewLedgerEngine(zlog), effects, scheduler, cfg.LedgerFeePolicy, zlog)
	verifier := services.NewVerifyService(registry, dispatcher, store.Orders, cfg.ProviderTimeout, zlog)
	query := services.NewQueryService(store, viewCache, recorder, zlog)

	if retryQueue != nil {
		worker := services.NewRetryWorker(registry, dispatcher, store.Events, zlog)
		go func() {
			if err := retryQueue.StartPolling(ctx, worker.Handle); err != nil && ctx.Err() == nil {
				zlog.Error("Retry worker stopped", zap.Error(err))
			}
		}()
	}

	r := routes.NewRouter(routes.Handlers{
		Payments:   controllers.NewPaymentController(registry, dispatcher, verifier, zlog),
		Settlement: controllers.NewSettlementController(query),
		Health:     controllers.NewHealthController(db),
	}, routes.Options{
		Logger:              zlog,
		Metrics:             metrics,
		JWTSecret:           cfg.JWTSecret,
		VerifyRatePerSecond: cfg.VerifyRatePerSecond,
		VerifyRateBurst:     cfg.VerifyRateBurst,
		RequestTimeout:      30 * time.Second,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	zlog.Info("Settlement service started",
		zap.String("port", cfg.Port),
		zap.Strings("providers", registry.Names()),
		zap.String("event_bus", cfg.EventBus),
		zap.String("fee_policy", cfg.LedgerFeePolicy),
	)
	<-quit
	zlog.Info("Shutting down settlement service...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	zlog.Info("Server exited cleanly")
}
