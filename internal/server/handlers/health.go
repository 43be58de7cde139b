// Package handlers implements the HTTP endpoints of the compile service.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/3leaps/mqlforge/internal/errors"
)

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// Check and overall statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
	StatusTimeout   = "timeout"
)

// DefaultCheckTimeout bounds each checker.
const DefaultCheckTimeout = 2 * time.Second

// HealthResponse is the body of a successful health probe.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
	Info      map[string]string `json:"info,omitempty"`
}

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	version      string
	startedAt    time.Time
	checkTimeout time.Duration

	mu       sync.RWMutex
	checkers map[string]HealthChecker
	info     map[string]string
}

// NewHealthManager creates a manager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:      version,
		startedAt:    time.Now(),
		checkTimeout: DefaultCheckTimeout,
		checkers:     make(map[string]HealthChecker),
		info:         make(map[string]string),
	}
}

// RegisterChecker adds or replaces the checker called name.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// SetInfo attaches a static key/value pair to every health response, such as
// the configured compiler executables.
func (m *HealthManager) SetInfo(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info[key] = value
}

// HealthHandler runs every checker. Any unhealthy check yields 503.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == StatusUnhealthy {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("service is unhealthy").
			WithDetails(map[string]any{"checks": checks}))
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, m.response(status, checks))
}

// LivenessHandler reports that the process is serving requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, http.StatusOK, m.response(StatusHealthy, nil))
}

// ReadinessHandler is HealthHandler under the readiness path.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports success once the manager exists.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, http.StatusOK, m.response(StatusHealthy, nil))
}

func (m *HealthManager) response(status string, checks map[string]string) HealthResponse {
	m.mu.RLock()
	info := make(map[string]string, len(m.info))
	for k, v := range m.info {
		info[k] = v
	}
	m.mu.RUnlock()

	return HealthResponse{
		Status:    status,
		Version:   m.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(m.startedAt).Round(time.Second).String(),
		Checks:    checks,
		Info:      info,
	}
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for k, v := range m.checkers {
		checkers[k] = v
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
		err := checkers[name].CheckHealth(cctx)
		cancel()

		switch {
		case err == nil:
			results[name] = StatusHealthy
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = StatusTimeout
		default:
			results[name] = StatusUnhealthy
		}
	}
	return results
}

// determineOverallStatus folds per-check results: any unhealthy check is
// unhealthy, any timeout is degraded.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := StatusHealthy
	for _, s := range checks {
		switch s {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusTimeout:
			status = StatusDegraded
		}
	}
	return status
}

var globalHealthManager *HealthManager

// InitHealthManager installs the process-wide manager.
func InitHealthManager(version string) *HealthManager {
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the process-wide manager, or nil.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, r, apperrors.NewServiceUnavailableError("health manager not initialized"))
}

// HealthHandler serves /health from the process-wide manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.HealthHandler(w, r)
}

// LivenessHandler serves /health/live from the process-wide manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.LivenessHandler(w, r)
}

// ReadinessHandler serves /health/ready from the process-wide manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.ReadinessHandler(w, r)
}

// StartupHandler serves /health/startup from the process-wide manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		notInitialized(w, r)
		return
	}
	globalHealthManager.StartupHandler(w, r)
}
