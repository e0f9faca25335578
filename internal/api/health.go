package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/exp/slices"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/accounts"
)

const serviceName = "tweetmap-worker"

// HealthMetrics tracks health-related metrics for the service
type HealthMetrics struct {
	mu             sync.RWMutex
	errorCount     int
	successCount   int
	windowStart    time.Time
	windowDuration time.Duration
	errorThreshold float64
}

// NewHealthMetrics creates a new health metrics tracker
func NewHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		windowStart:    time.Now(),
		windowDuration: 10 * time.Minute,
		errorThreshold: 0.95,
	}
}

// RecordSuccess records a successful request
func (hm *HealthMetrics) RecordSuccess() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkAndResetWindow()
	hm.successCount++
}

// RecordError records an error
func (hm *HealthMetrics) RecordError() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkAndResetWindow()
	hm.errorCount++
}

func (hm *HealthMetrics) checkAndResetWindow() {
	if time.Since(hm.windowStart) > hm.windowDuration {
		hm.errorCount = 0
		hm.successCount = 0
		hm.windowStart = time.Now()
	}
}

// IsHealthy checks if the service is healthy based on error rate
func (hm *HealthMetrics) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	total := hm.errorCount + hm.successCount
	if total == 0 {
		return true
	}

	errorRate := float64(hm.errorCount) / float64(total)
	return errorRate < hm.errorThreshold
}

// GetStats returns current health statistics
func (hm *HealthMetrics) GetStats() map[string]any {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	total := hm.errorCount + hm.successCount
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(hm.errorCount) / float64(total)
	}

	return map[string]any{
		"error_count":     hm.errorCount,
		"success_count":   hm.successCount,
		"total_count":     total,
		"error_rate":      errorRate,
		"window_start":    hm.windowStart.Format(time.RFC3339),
		"window_duration": hm.windowDuration.String(),
	}
}

// healthz is the liveness probe endpoint
func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	}
}

// readyz reports the store, the queue, the accounts and the request error
// rate. It answers 503 when the store is unreachable, no account is
// configured or the error rate is over threshold.
func readyz(d Deps, healthMetrics *HealthMetrics) echo.HandlerFunc {
	return func(c echo.Context) error {
		checks := map[string]any{}
		body := map[string]any{
			"service": serviceName,
			"ready":   true,
			"checks":  checks,
		}
		ready := true

		if d.Jobs == nil {
			checks["job_server"] = "not initialized"
			body["ready"] = false
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		js := d.Jobs.Stats()
		checks["job_server"] = "ok"
		checks["queue_depth"] = js.Queue.Depth
		checks["fetching"] = js.Jobs[types.JobStatusFetching]

		if d.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := d.Store.Ping(ctx); err != nil {
				checks["store"] = err.Error()
				ready = false
			} else {
				checks["store"] = "ok"
			}
		}

		var states []accounts.AccountState
		if d.Accounts != nil {
			states = d.Accounts.States()
		}
		checks["accounts"] = states
		switch {
		case len(states) == 0:
			checks["account_pool"] = "empty"
			ready = false
		case slices.IndexFunc(states, func(s accounts.AccountState) bool { return !s.Quarantined }) < 0:
			// Next() resets the cycle, so this is degraded rather than down.
			checks["account_pool"] = "all quarantined"
		default:
			checks["account_pool"] = "ok"
		}

		if healthMetrics.IsHealthy() {
			checks["error_rate"] = "healthy"
		} else {
			checks["error_rate"] = "unhealthy"
			ready = false
		}
		checks["stats"] = healthMetrics.GetStats()

		if !ready {
			body["ready"] = false
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
