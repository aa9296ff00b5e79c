package health

import (
	"context"
	"sync"
	"time"
)

// Status classifies a component's health
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of probing one component
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Checker probes a single component
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Registry runs a set of component checkers and aggregates their results.
// An unhealthy component makes the whole registry unhealthy; degraded only
// downgrades from healthy.
type Registry struct {
	checkers []Checker
	timeout  time.Duration
}

// NewRegistry creates a registry with a per-sweep timeout
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Registry{timeout: timeout}
}

// Register adds a checker
func (r *Registry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

// Check probes every registered component in parallel and returns the overall
// status with the individual results
func (r *Registry) Check(ctx context.Context) (Status, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]CheckResult, len(r.checkers))
	var wg sync.WaitGroup
	for i, checker := range r.checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}(i, checker)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall, results
}

func result(component string, status Status, message string, started time.Time) CheckResult {
	return CheckResult{
		Component: component,
		Status:    status,
		Message:   message,
		Duration:  time.Since(started),
		CheckedAt: time.Now(),
	}
}
