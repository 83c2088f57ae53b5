package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahimunlu/humanID/internal/audit"
	"github.com/rahimunlu/humanID/internal/biometrics/matcher"
	"github.com/rahimunlu/humanID/internal/biometrics/score"
	"github.com/rahimunlu/humanID/internal/biometrics/service"
	"github.com/rahimunlu/humanID/internal/biometrics/store"
	"github.com/rahimunlu/humanID/internal/biometrics/vault"
	"github.com/rahimunlu/humanID/internal/ledger"
	"github.com/rahimunlu/humanID/internal/ledger/cache"
	"github.com/rahimunlu/humanID/internal/platform/config"
	"github.com/rahimunlu/humanID/internal/platform/database"
	"github.com/rahimunlu/humanID/internal/platform/health"
	"github.com/rahimunlu/humanID/internal/platform/httpserver"
	"github.com/rahimunlu/humanID/internal/platform/kafka/producer"
	"github.com/rahimunlu/humanID/internal/platform/logger"
	"github.com/rahimunlu/humanID/internal/platform/metrics"
	platformredis "github.com/rahimunlu/humanID/internal/platform/redis"
	httptransport "github.com/rahimunlu/humanID/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing biometrics server",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	if cfg.EncryptionKey == "" {
		log.Error("ENCRYPTION_KEY must be set")
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		log.Error("failed to create upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	healthHandler := health.New(cfg.Environment)

	// Records live in Postgres when a DSN is configured, otherwise in a
	// JSON-file store under the data directory.
	var recordStore store.Store
	pool, err := poolFromConfig(cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		recordStore = store.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
		log.Info("using postgres record store")
	} else {
		fs, err := store.NewFilesystem(cfg.DataDir, log)
		if err != nil {
			log.Error("failed to open filesystem record store", "dir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		recordStore = fs
		log.Info("using filesystem record store", "dir", cfg.DataDir)
	}

	fileVault, err := vault.New(cfg.VaultDir, cfg.EncryptionKey)
	if err != nil {
		log.Error("failed to open vault", "dir", cfg.VaultDir, "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	mirror := buildMirror(cfg, redisClient, log)

	auditor, kafkaProducer := buildAuditor(cfg, healthHandler, log)
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
	}

	mx := metrics.New()

	svc := service.New(
		recordStore,
		fileVault,
		matcher.NewScript(cfg.MatcherScript, cfg.MatcherTimeout, log),
		score.New(),
		mirror,
		auditor,
		mx,
		log,
		cfg.UploadDir,
	)

	handler := httptransport.NewHandler(svc, log, cfg.MaxUploadBytes)
	router := httptransport.NewRouter(handler, healthHandler, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func poolFromConfig(cfg config.Server) (*database.Pool, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	return database.New(dbCfg)
}

// buildMirror returns nil when no ledger key is configured; the service then
// reports every record as not mirrored.
func buildMirror(cfg config.Server, redisClient *platformredis.Client, log *slog.Logger) service.Mirror {
	if cfg.Ledger.PrivateKey == "" {
		log.Warn("PRIVATE_KEY not set, ledger mirroring disabled")
		return nil
	}

	client, err := ledger.NewRPC(cfg.Ledger.RPCURL, cfg.Ledger.PrivateKey, log)
	if err != nil {
		log.Warn("ledger client unavailable, mirroring disabled", "error", err)
		return nil
	}

	var snapshot cache.Cache
	if redisClient != nil {
		snapshot = cache.NewRedis(redisClient.Client, cfg.Ledger.CacheTTL)
	} else {
		snapshot = cache.NewInMemory(cfg.Ledger.CacheTTL)
	}

	log.Info("ledger mirroring enabled", "rpc_url", cfg.Ledger.RPCURL, "address", client.Address())
	return ledger.NewMirror(client, snapshot, cfg.Ledger.AppTag, cfg.Ledger.PublishTimeout, cfg.Ledger.FetchTimeout, log)
}

func buildAuditor(cfg config.Server, healthHandler *health.Handler, log *slog.Logger) (audit.Publisher, *producer.Producer) {
	if cfg.Kafka.Brokers == "" {
		return audit.Noop{}, nil
	}

	kafkaProducer, err := producer.New(producer.Config{
		Brokers: cfg.Kafka.Brokers,
		Acks:    "all",
		Retries: 3,
	}, log)
	if err != nil {
		log.Warn("kafka unavailable, audit events disabled", "error", err)
		return audit.Noop{}, nil
	}

	healthHandler.RegisterCheck("kafka", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if !kafkaProducer.Healthy(ctx) {
			return errors.New("kafka brokers unreachable")
		}
		return nil
	})

	log.Info("audit event stream enabled", "topic", cfg.Kafka.Topic)
	return audit.NewKafka(kafkaProducer, cfg.Kafka.Topic, log), kafkaProducer
}
