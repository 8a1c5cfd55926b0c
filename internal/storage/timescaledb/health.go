package timescaledb

import (
	"context"
	"time"
)

// Health is the most recent result of a storage health check
type Health struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
}

// Healthy reports whether the last check succeeded
func (h Health) Healthy() bool {
	return h.Status == "healthy"
}

// CheckHealth pings the database and runs a trivial query
func (s *Store) CheckHealth(ctx context.Context) Health {
	health := Health{
		LastCheck: time.Now().UTC(),
		Status:    "unhealthy",
	}

	if s.db == nil {
		health.Message = "No database connection"
		health.Error = "TimescaleDB connection is nil"
		return health
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		health.Message = "Failed to get underlying database connection"
		health.Error = err.Error()
		return health
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		health.Message = "Database ping failed"
		health.Error = err.Error()
		return health
	}

	var result int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		health.Message = "Database query test failed"
		health.Error = err.Error()
		return health
	}

	health.Status = "healthy"
	health.Message = "TimescaleDB operational"
	return health
}

// LastHealth returns the result recorded by the health monitor, checking
// synchronously if the monitor has not run yet.
func (s *Store) LastHealth(ctx context.Context) Health {
	if h := s.health.Load(); h != nil {
		return *h
	}
	return s.CheckHealth(ctx)
}

// StartHealthMonitor checks the database every interval until ctx is done
func (s *Store) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	go func() {
		s.recordHealth(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.recordHealth(ctx)
			case <-ctx.Done():
				s.logger.Info("stopping TimescaleDB health monitor")
				return
			}
		}
	}()
}

func (s *Store) recordHealth(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	h := s.CheckHealth(checkCtx)
	previous := s.health.Swap(&h)
	if previous == nil || previous.Status != h.Status {
		if h.Healthy() {
			s.logger.Infof("TimescaleDB health: %s", h.Message)
		} else {
			s.logger.Errorf("TimescaleDB health: %s: %s", h.Message, h.Error)
		}
	}
}
