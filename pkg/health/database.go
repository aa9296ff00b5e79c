package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DatabaseChecker probes the Postgres connection backing the request,
// certificate, hold and inventory stores
type DatabaseChecker struct {
	db *sql.DB
}

// NewDatabaseChecker creates a database health checker
func NewDatabaseChecker(db *sql.DB) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

// Name returns the component name
func (c *DatabaseChecker) Name() string {
	return "database"
}

// Check pings the database and inspects pool pressure
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	started := time.Now()

	if err := c.db.PingContext(ctx); err != nil {
		return result(c.Name(), StatusUnhealthy, err.Error(), started)
	}

	stats := c.db.Stats()
	if stats.MaxOpenConnections > 0 {
		utilization := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections)
		if utilization > 0.8 {
			return result(c.Name(), StatusDegraded,
				fmt.Sprintf("connection pool at %.0f%% utilization", utilization*100), started)
		}
	}
	return result(c.Name(), StatusHealthy, "connected", started)
}
