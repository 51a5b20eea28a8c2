package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"imagegen/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	StartTime string            `json:"start_time"`
	Checks    map[string]string `json:"checks"`
}

// Global start time for uptime calculation
var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports liveness plus the state of the cache backend and the
// failure journal. A broken cache degrades the service but does not fail it.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Health check request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	status := "healthy"
	checks := map[string]string{}

	if err := s.svc.Ping(r.Context()); err != nil {
		logger.Warnf("cache health check failed: %v", err)
		checks["cache"] = "unavailable"
		status = "degraded"
	} else {
		checks["cache"] = "ok"
	}

	if s.failures != nil {
		if err := s.failures.CheckHealth(); err != nil {
			logger.Warnf("failures health check failed: %v", err)
			checks["failures"] = "unavailable"
			status = "degraded"
		} else {
			checks["failures"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(startTime)),
		StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
		Checks:    checks,
	})
}
