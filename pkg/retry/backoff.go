// Package retry computes the delays between re-executions of failed work.
// The scheduler turns these into scheduled_execution_time bumps rather than
// sleeping, so the calculators are pure functions of the attempt number.
package retry

import (
	"math"
	"time"
)

// CalculateExponential calculates exponential backoff without jitter
func CalculateExponential(initialBackoff time.Duration, multiplier float64, attempt int, maxBackoff time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := float64(initialBackoff) * math.Pow(multiplier, float64(attempt-1))

	if maxBackoff > 0 && backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}

// CalculateLinear calculates linear backoff
func CalculateLinear(initialBackoff time.Duration, attempt int, maxBackoff time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := initialBackoff * time.Duration(attempt)

	if maxBackoff > 0 && backoff > maxBackoff {
		backoff = maxBackoff
	}

	return backoff
}
