package kms

import (
	"time"

	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/services/keymgmt"
	"github.com/compliance-service/erasure_service/internal/infrastructure/config"
)

// FromConfig builds the configured key management provider, breaker-wrapped
// when enabled. Only the local provider exists today; the breaker wrapping is
// what an external KMS would sit behind.
func FromConfig(cfg *config.KMSConfig, logger *zap.Logger) keymgmt.Provider {
	var provider keymgmt.Provider = NewLocalProvider(logger)

	if cfg.BreakerEnabled {
		breakerCfg := DefaultBreakerConfig()
		if cfg.BreakerMaxFails > 0 {
			breakerCfg.MaxConsecutiveFails = uint32(cfg.BreakerMaxFails)
		}
		if cfg.BreakerTimeout > 0 {
			breakerCfg.OpenTimeout = time.Duration(cfg.BreakerTimeout) * time.Second
		}
		provider = NewBreakerProvider(provider, breakerCfg, logger)
	}

	return provider
}
