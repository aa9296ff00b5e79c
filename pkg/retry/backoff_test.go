package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateExponential(t *testing.T) {
	assert.Equal(t, time.Duration(0), CalculateExponential(time.Hour, 2.0, 0, 0))
	assert.Equal(t, time.Hour, CalculateExponential(time.Hour, 2.0, 1, 0))
	assert.Equal(t, 2*time.Hour, CalculateExponential(time.Hour, 2.0, 2, 0))
	assert.Equal(t, 4*time.Hour, CalculateExponential(time.Hour, 2.0, 3, 0))

	// Cap applies once the curve passes it.
	assert.Equal(t, 3*time.Hour, CalculateExponential(time.Hour, 2.0, 3, 3*time.Hour))
}

func TestCalculateLinear(t *testing.T) {
	assert.Equal(t, time.Duration(0), CalculateLinear(time.Minute, 0, 0))
	assert.Equal(t, 3*time.Minute, CalculateLinear(time.Minute, 3, 0))
	assert.Equal(t, 2*time.Minute, CalculateLinear(time.Minute, 5, 2*time.Minute))
}
