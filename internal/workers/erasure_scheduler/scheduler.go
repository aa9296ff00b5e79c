package erasurescheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/internal/domain/repositories"
	"github.com/compliance-service/erasure_service/pkg/metrics"
	"github.com/compliance-service/erasure_service/pkg/retry"
)

// Executor is the slice of the coordinator the scheduler drives
type Executor interface {
	Execute(ctx context.Context, requestID uuid.UUID) (*entities.ExecutionResult, error)
}

// CertificatePurger removes certificates whose retention has lapsed
type CertificatePurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// HoldSweeper deactivates legal holds whose advisory expiry has passed
type HoldSweeper interface {
	DeactivateExpired(ctx context.Context) (int, error)
}

// Verifier proves completed erasures after the fact
type Verifier interface {
	Verify(ctx context.Context, requestID uuid.UUID) *entities.VerificationResult
}

// Config holds configuration for the erasure scheduler
type Config struct {
	Enabled                    bool
	PollInterval               time.Duration // How often to check for due requests
	BatchSize                  int           // Number of due requests to fetch per poll
	MaxConcurrency             int           // Maximum number of executions in flight
	MaxRetryAttempts           int           // Re-schedules before a failure sticks
	RetryDelayBase             time.Duration // Base delay between retries
	UseExponentialBackoff      bool          // Exponential vs linear retry delays
	CertificateCleanupInterval time.Duration // Cadence of expired certificate purges
	HoldSweepInterval          time.Duration // Cadence of expired hold deactivation
	ShutdownTimeout            time.Duration // How long to wait for in-flight work on Stop
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:                    true,
		PollInterval:               1 * time.Minute,
		BatchSize:                  25,
		MaxConcurrency:             4,
		MaxRetryAttempts:           3,
		RetryDelayBase:             5 * time.Minute,
		UseExponentialBackoff:      true,
		CertificateCleanupInterval: 24 * time.Hour,
		HoldSweepInterval:          1 * time.Hour,
		ShutdownTimeout:            30 * time.Second,
	}
}

// Scheduler is the background poller driving scheduled erasures. Multiple
// instances may run concurrently: the coordinator's conditional status
// transition guarantees each request executes once, losers just skip it.
type Scheduler struct {
	coordinator  Executor
	requests     repositories.ErasureRequestRepository
	certificates CertificatePurger
	holds        HoldSweeper // nil disables the expiry sweep
	verifier     Verifier    // nil disables post-execution verification
	config       Config
	logger       *zap.Logger

	// Concurrency control
	semaphore chan struct{}
	wg        sync.WaitGroup

	// Lifecycle management
	ctx       context.Context
	cancel    context.CancelFunc
	cron      *cron.Cron
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a new erasure scheduler
func NewScheduler(
	coordinator Executor,
	requests repositories.ErasureRequestRepository,
	certificates CertificatePurger,
	holds HoldSweeper,
	verifier Verifier,
	config Config,
	logger *zap.Logger,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		coordinator:  coordinator,
		requests:     requests,
		certificates: certificates,
		holds:        holds,
		verifier:     verifier,
		config:       config,
		logger:       logger,
		semaphore:    make(chan struct{}, config.MaxConcurrency),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the polling loop and the maintenance cadences. A disabled
// scheduler returns immediately without touching storage.
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Erasure scheduler disabled, not starting")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.logger.Info("Starting erasure scheduler",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("max_concurrency", s.config.MaxConcurrency))

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.CertificateCleanupInterval), s.purgeExpiredCertificates); err != nil {
		return fmt.Errorf("failed to schedule certificate cleanup: %w", err)
	}
	if s.holds != nil {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.HoldSweepInterval), s.sweepExpiredHolds); err != nil {
			return fmt.Errorf("failed to schedule hold sweep: %w", err)
		}
	}
	s.cron.Start()

	go s.pollLoop()

	return nil
}

// Stop gracefully shuts down the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.Unlock()

	s.logger.Info("Stopping erasure scheduler",
		zap.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	s.cancel()
	if s.cron != nil {
		s.cron.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All in-flight executions completed, scheduler stopped gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		s.logger.Warn("Shutdown timeout reached, some executions may not have completed",
			zap.Duration("timeout", s.config.ShutdownTimeout))
	}

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// pollLoop continuously polls for due requests
func (s *Scheduler) pollLoop() {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Process due requests immediately on start
	s.processDueRequests()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Poll loop stopped due to context cancellation")
			return

		case <-ticker.C:
			s.processDueRequests()
		}
	}
}

// processDueRequests fetches one batch of due scheduled requests and drives
// execution for each. A bad request never blocks the rest of the batch.
func (s *Scheduler) processDueRequests() {
	due, err := s.requests.GetScheduledBefore(s.ctx, time.Now(), s.config.BatchSize)
	if err != nil {
		s.logger.Error("Failed to fetch due erasure requests", zap.Error(err))
		return
	}

	metrics.SchedulerBatchesTotal.Inc()
	metrics.SchedulerBatchSize.Observe(float64(len(due)))
	if len(due) == 0 {
		return
	}
	s.logger.Info("Found due erasure requests", zap.Int("count", len(due)))

	for _, status := range due {
		s.enqueue(status)
	}
}

// enqueue attempts to execute a request, respecting the concurrency limit
func (s *Scheduler) enqueue(status *entities.ErasureStatus) {
	select {
	case <-s.ctx.Done():
		return

	case s.semaphore <- struct{}{}:
		s.wg.Add(1)
		go s.executeAsync(status)

	default:
		// Semaphore full; the request stays due and the next poll retries it.
		s.logger.Debug("Concurrency limit reached, deferring request to next poll",
			zap.String("request_id", status.RequestID.String()))
	}
}

// executeAsync runs a single erasure, isolating panics and per-item failures
func (s *Scheduler) executeAsync(status *entities.ErasureStatus) {
	defer func() {
		<-s.semaphore
		s.wg.Done()

		if r := recover(); r != nil {
			metrics.SchedulerItemFailuresTotal.Inc()
			s.logger.Error("Panic during erasure execution",
				zap.String("request_id", status.RequestID.String()),
				zap.Any("panic", r))
		}
	}()

	result, err := s.coordinator.Execute(s.ctx, status.RequestID)
	if err != nil {
		metrics.SchedulerItemFailuresTotal.Inc()
		s.logger.Error("Erasure execution errored",
			zap.String("request_id", status.RequestID.String()),
			zap.Error(err))
		return
	}
	if result.Success {
		s.verifyCompleted(status.RequestID)
		return
	}

	metrics.SchedulerItemFailuresTotal.Inc()
	s.maybeRetry(status, result)
}

// maybeRetry re-schedules a failed execution with backoff until the retry
// budget is spent; after that the failure sticks.
func (s *Scheduler) maybeRetry(status *entities.ErasureStatus, result *entities.ExecutionResult) {
	attempt := status.RetryAttempts + 1
	if attempt > s.config.MaxRetryAttempts {
		s.logger.Warn("Erasure request exhausted retries",
			zap.String("request_id", status.RequestID.String()),
			zap.Int("attempts", status.RetryAttempts),
			zap.String("error", result.ErrorMessage))
		return
	}

	var delay time.Duration
	if s.config.UseExponentialBackoff {
		delay = retry.CalculateExponential(s.config.RetryDelayBase, 2.0, attempt, 0)
	} else {
		delay = retry.CalculateLinear(s.config.RetryDelayBase, attempt, 0)
	}

	nextExecution := time.Now().Add(delay)
	if err := s.requests.MarkRetry(s.ctx, status.RequestID, nextExecution); err != nil {
		s.logger.Error("Failed to re-schedule erasure request",
			zap.String("request_id", status.RequestID.String()),
			zap.Error(err))
		return
	}
	s.logger.Info("Erasure request re-scheduled after failure",
		zap.String("request_id", status.RequestID.String()),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

// verifyCompleted runs post-execution verification and surfaces failures in
// the log. Verification never changes the request's outcome.
func (s *Scheduler) verifyCompleted(requestID uuid.UUID) {
	if s.verifier == nil {
		return
	}

	result := s.verifier.Verify(s.ctx, requestID)
	if result.Verified {
		s.logger.Info("Erasure verified",
			zap.String("request_id", requestID.String()))
		return
	}
	s.logger.Warn("Erasure verification failed",
		zap.String("request_id", requestID.String()),
		zap.Int("failures", len(result.Failures)))
}

// purgeExpiredCertificates removes certificates whose retention has lapsed
func (s *Scheduler) purgeExpiredCertificates() {
	purged, err := s.certificates.DeleteExpired(s.ctx, time.Now())
	if err != nil {
		s.logger.Error("Certificate cleanup failed", zap.Error(err))
		return
	}
	if purged > 0 {
		metrics.CertificatesPurgedTotal.Add(float64(purged))
		s.logger.Info("Purged expired certificates", zap.Int("count", purged))
	}
}

// sweepExpiredHolds deactivates holds whose advisory expiry has passed
func (s *Scheduler) sweepExpiredHolds() {
	deactivated, err := s.holds.DeactivateExpired(s.ctx)
	if err != nil {
		s.logger.Error("Legal hold sweep failed", zap.Error(err))
		return
	}
	if deactivated > 0 {
		s.logger.Info("Deactivated expired legal holds", zap.Int("count", deactivated))
	}
}
