package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ready pings every dependency in parallel. Nil dependencies (an optional
// relay that is not configured) are skipped.
func Ready(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var (
			mu         sync.Mutex
			checks     = make(map[string]HealthCheckResult, len(deps))
			allHealthy = true
			g          errgroup.Group
		)
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			g.Go(func() error {
				result := check(ctx, dep)
				mu.Lock()
				checks[name] = result
				allHealthy = allHealthy && result.Status == "up"
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}

		status := http.StatusOK
		response["status"] = "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}
		writeJSON(w, status, response)
	}
}

func check(ctx context.Context, dep Pinger) HealthCheckResult {
	start := time.Now()
	err := dep.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
	}
}
