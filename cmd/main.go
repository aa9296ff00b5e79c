package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/internal/domain/services/erasure"
	"github.com/compliance-service/erasure_service/internal/domain/services/inventory"
	"github.com/compliance-service/erasure_service/internal/domain/services/legalhold"
	"github.com/compliance-service/erasure_service/internal/domain/services/verification"
	"github.com/compliance-service/erasure_service/internal/infrastructure/cache"
	"github.com/compliance-service/erasure_service/internal/infrastructure/config"
	"github.com/compliance-service/erasure_service/internal/infrastructure/database"
	"github.com/compliance-service/erasure_service/internal/infrastructure/kms"
	"github.com/compliance-service/erasure_service/internal/infrastructure/repositories"
	erasurescheduler "github.com/compliance-service/erasure_service/internal/workers/erasure_scheduler"
	"github.com/compliance-service/erasure_service/pkg/health"
	"github.com/compliance-service/erasure_service/pkg/logger"
	"github.com/compliance-service/erasure_service/pkg/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	log.Info("Starting erasure service",
		"version", version.Get().String(),
		"environment", cfg.Environment)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(db, "migrations"); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Repositories
	requestRepo := repositories.NewErasureRequestRepository(db, log.Zap())
	certificateRepo := repositories.NewCertificateRepository(db, log.Zap())
	holdRepo := repositories.NewLegalHoldRepository(db, log.Zap())
	auditRepo := repositories.NewAuditRepository(db, log.Zap())
	inventoryRepo := repositories.NewInventoryRepository(
		sqlx.NewDb(db, "postgres"), log.Zap())

	// Key management, breaker-wrapped unless disabled
	keyProvider := kms.FromConfig(&cfg.KMS, log.Zap())

	// Optional Redis cache for data maps
	var dataMapCache inventory.DataMapCache
	redisCache, err := cache.NewDataMapCache(&cache.RedisConfig{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      time.Duration(cfg.Redis.DataMapTTL) * time.Second,
	}, log.Zap())
	if err != nil {
		log.Warn("Data map cache unavailable, continuing without it", "error", err)
	} else {
		dataMapCache = redisCache
		defer redisCache.Close()
	}

	// Domain services
	holdRegistry := legalhold.NewRegistry(holdRepo, cfg.Erasure.SubjectHashSalt, log.Zap())
	inventoryIndex := inventory.NewIndex(inventoryRepo, keyProvider, dataMapCache,
		cfg.Erasure.SubjectHashSalt, log.Zap())

	coordinator := erasure.NewCoordinator(
		requestRepo,
		certificateRepo,
		inventoryRepo,
		holdRegistry,
		inventoryIndex,
		keyProvider,
		auditRepo,
		erasure.Config{
			DefaultGracePeriod:         cfg.Erasure.DefaultGracePeriod(),
			MinimumGracePeriod:         cfg.Erasure.MinimumGracePeriod(),
			MaximumGracePeriod:         cfg.Erasure.MaximumGracePeriod(),
			CertificateRetentionPeriod: cfg.Erasure.CertificateRetention(),
			SigningKey:                 cfg.Erasure.CertificateSigningKey,
			SubjectHashSalt:            cfg.Erasure.SubjectHashSalt,
		},
		log.Zap(),
	)

	verifier := verification.NewEngine(
		requestRepo,
		certificateRepo,
		auditRepo,
		keyProvider,
		verificationConfig(cfg),
		log.Zap(),
	)

	// Background scheduler
	schedulerConfig := erasurescheduler.Config{
		Enabled:                    cfg.Scheduler.Enabled,
		PollInterval:               time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second,
		BatchSize:                  cfg.Scheduler.BatchSize,
		MaxConcurrency:             cfg.Scheduler.MaxConcurrency,
		MaxRetryAttempts:           cfg.Scheduler.MaxRetryAttempts,
		RetryDelayBase:             time.Duration(cfg.Scheduler.RetryDelayBaseSeconds) * time.Second,
		UseExponentialBackoff:      cfg.Scheduler.UseExponentialBackoff,
		CertificateCleanupInterval: time.Duration(cfg.Scheduler.CertificateCleanupHours) * time.Hour,
		HoldSweepInterval:          time.Duration(cfg.Scheduler.HoldSweepMinutes) * time.Minute,
		ShutdownTimeout:            time.Duration(cfg.Scheduler.ShutdownTimeoutSeconds) * time.Second,
	}

	scheduler := erasurescheduler.NewScheduler(
		coordinator,
		requestRepo,
		certificateRepo,
		holdRegistry,
		verifier,
		schedulerConfig,
		log.Zap(),
	)

	if err := scheduler.Start(); err != nil {
		log.Fatal("Failed to start erasure scheduler", "error", err)
	}
	log.Info("Erasure scheduler started", "environment", cfg.Environment)

	// Periodic dependency health sweep, logged rather than served
	healthRegistry := health.NewRegistry(10 * time.Second)
	healthRegistry.Register(health.NewDatabaseChecker(db))
	if redisCache != nil {
		healthRegistry.Register(health.NewRedisChecker(redisCache.Client()))
	}
	healthDone := make(chan struct{})
	go runHealthSweep(healthRegistry, log, healthDone)

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	close(healthDone)

	if scheduler.IsRunning() {
		if err := scheduler.Stop(); err != nil {
			log.Warn("Error stopping scheduler", "error", err)
		}
	}

	log.Info("Service exited")
}

// runHealthSweep probes the backing stores on an interval and logs anything
// that is not healthy. The daemon has no HTTP surface, so operators watch the
// logs and the Prometheus gauges instead of an endpoint.
func runHealthSweep(registry *health.Registry, log *logger.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			status, results := registry.Check(context.Background())
			if status == health.StatusHealthy {
				continue
			}
			for _, result := range results {
				if result.Status != health.StatusHealthy {
					log.Warn("Dependency health check failed",
						"component", result.Component,
						"status", string(result.Status),
						"message", result.Message)
				}
			}
		}
	}
}

func verificationConfig(cfg *config.Config) verification.Config {
	var methods verification.Config
	if cfg.Verification.VerifyKeyManagementSystem {
		methods.EnabledMethods |= entities.VerifyKeyManagementSystem
	}
	if cfg.Verification.VerifyAuditLog {
		methods.EnabledMethods |= entities.VerifyAuditLog
	}
	if cfg.Verification.VerifyDecryptionFailure {
		methods.EnabledMethods |= entities.VerifyDecryptionFailure
	}
	return methods
}
