package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/port"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/config"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/email"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-sampling-service/internal/infra/minio"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/npy"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/rabbitmq"
	s3storage "github.com/fiapx/fiapx-sampling-service/internal/infra/s3"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/vidio"
	"github.com/fiapx/fiapx-sampling-service/internal/sampler"
	"github.com/fiapx/fiapx-sampling-service/internal/usecase"
	"github.com/fiapx/fiapx-sampling-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-sampling-service",
		zap.String("decoder", cfg.DecoderBackend),
		zap.String("storage", cfg.StorageBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	storage, err := newStorage(ctx, cfg)
	fatalOnErr(err, "create storage")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	dtype, err := npy.ParseDType(cfg.ClipDType)
	fatalOnErr(err, "parse CLIP_DTYPE")

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	clipSampler := sampler.New(newDecoder(cfg, log), log, sampler.WithMaxClipBytes(cfg.MaxClipBytes))
	encoder := npy.NewArchiveEncoder(dtype)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewSampleVideoUseCase(
		repo, storage, clipSampler, encoder,
		statusPub, dlqPub, notifier,
		log,
		usecase.SampleVideoConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQSamplingQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-sampling-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-sampling-service stopped")
}

func newStorage(ctx context.Context, cfg *config.Config) (port.VideoStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3storage.NewStorage(ctx, s3storage.StorageConfig{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UploadBucket: cfg.S3UploadBucket,
			ClipBucket:   cfg.S3ClipBucket,
		})
	case "minio":
		storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:     cfg.MinIOEndpoint,
			AccessKey:    cfg.MinIOAccessKey,
			SecretKey:    cfg.MinIOSecretKey,
			UseSSL:       cfg.MinIOUseSSL,
			UploadBucket: cfg.MinIOUploadBucket,
			ClipBucket:   cfg.MinIOClipBucket,
		})
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureBuckets(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio buckets: %w", err)
		}
		return storage, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func newDecoder(cfg *config.Config, log *zap.Logger) port.VideoDecoder {
	if cfg.DecoderBackend == "vidio" {
		return vidio.NewDecoder(log)
	}
	return ffmpeg.NewDecoder(cfg.FFmpegPath, cfg.FFmpegThreads, log)
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
