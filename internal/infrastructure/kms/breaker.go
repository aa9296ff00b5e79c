package kms

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
	"github.com/compliance-service/erasure_service/internal/domain/services/keymgmt"
	apperrors "github.com/compliance-service/erasure_service/pkg/errors"
)

// BreakerConfig tunes the circuit breaker around the key provider
type BreakerConfig struct {
	MaxConsecutiveFails uint32
	OpenTimeout         time.Duration
}

// DefaultBreakerConfig returns sensible breaker defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxConsecutiveFails: 5,
		OpenTimeout:         60 * time.Second,
	}
}

// BreakerProvider wraps a key management provider with a circuit breaker so a
// struggling KMS degrades fast instead of stalling every erasure. Domain
// outcomes like ErrKeyNotFound pass through without counting as failures.
type BreakerProvider struct {
	inner   keymgmt.Provider
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerProvider wraps the given provider
func NewBreakerProvider(inner keymgmt.Provider, cfg BreakerConfig, logger *zap.Logger) *BreakerProvider {
	st := gobreaker.Settings{
		Name:        "KeyManagement",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.MaxConsecutiveFails
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Not-found and state refusals are answers, not outages.
			if err == nil {
				return true
			}
			return errors.Is(err, apperrors.ErrKeyNotFound) ||
				apperrors.IsType(err, apperrors.ErrorTypeInvalidState)
		},
	}

	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

// GetKey delegates through the breaker
func (p *BreakerProvider) GetKey(ctx context.Context, keyID string) (*entities.EncryptionKey, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.GetKey(ctx, keyID)
	})
	if err != nil {
		return nil, p.translate(err)
	}
	return result.(*entities.EncryptionKey), nil
}

// DestroyKey delegates through the breaker
func (p *BreakerProvider) DestroyKey(ctx context.Context, keyID string) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.inner.DestroyKey(ctx, keyID)
	})
	return p.translate(err)
}

// Decrypt delegates through the breaker
func (p *BreakerProvider) Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Decrypt(ctx, keyID, ciphertext)
	})
	if err != nil {
		return nil, p.translate(err)
	}
	return result.([]byte), nil
}

func (p *BreakerProvider) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.WrapExternal(err, "key management provider unavailable")
	}
	return err
}
