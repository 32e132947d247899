package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-nonverbal-service/internal/analysis"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/config"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/email"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-nonverbal-service/internal/infra/minio"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/mqtt"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/perception"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-nonverbal-service/internal/usecase"
	"github.com/fiapx/fiapx-nonverbal-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const serviceName = "fiapx-nonverbal-service"

var version = "dev"

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting "+serviceName, zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, tracing.Options{
		Endpoint:       cfg.JaegerEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		ReportBucket: cfg.MinIOReportBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	publishers := usecase.FanoutPublisher{rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)}
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Optional MQTT mirror of status messages
	if cfg.MQTTBroker != "" {
		emitter := mqtt.NewStatusEmitter(mqtt.EmitterConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			QoS:      1,
		}, log)
		if err := emitter.Connect(ctx); err != nil {
			log.Warn("mqtt unavailable, status mirroring disabled", zap.Error(err))
			emitter.Close()
		} else {
			defer func() {
				published, failed := emitter.Stats()
				log.Info("mqtt status mirror stopped", zap.Uint64("published", published), zap.Uint64("failed", failed))
				emitter.Close()
			}()
			publishers = append(publishers, emitter)
		}
	}

	// Analysis
	decoder := ffmpeg.NewDecoder(cfg.FFmpegPath, cfg.FFprobePath, log, ffmpeg.WithFrameTimeout(cfg.FFmpegFrameTimeout))
	workers := perception.NewWorkerPerception(perception.Config{
		Command: cfg.PerceptionCommand,
		Args:    cfg.PerceptionArgs,
		Timeout: cfg.PerceptionTimeout,
	}, log)
	pipeline := analysis.NewPipeline(decoder, workers, log)

	repo := postgres.NewJobRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewAnalyzeVideoUseCase(
		repo, storage, decoder, pipeline,
		publishers, dlqPub, notifier,
		log,
		usecase.AnalyzeVideoConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQAnalysisQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Metrics + health
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "postgres", Check: repo.Ping},
		metrics.HealthCheck{Name: "minio", Check: storage.Ping},
		metrics.HealthCheck{Name: "rabbitmq", Check: consumer.Ping},
	)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info(serviceName+" started, consuming messages", zap.String("queue", cfg.RabbitMQAnalysisQueue))

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}

	consumer.Close()
	log.Info(serviceName + " stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
