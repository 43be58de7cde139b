package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("compiled_dir", stubChecker{err: nil})
	manager.SetInfo("mql5_executable", `C:\MT5\metaeditor64.exe`)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Fatalf("expected healthy status, got %s", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %s", resp.Version)
	}
	if resp.Checks["compiled_dir"] != "healthy" {
		t.Fatalf("expected compiled_dir check to be healthy, got %s", resp.Checks["compiled_dir"])
	}
	if resp.Info["mql5_executable"] != `C:\MT5\metaeditor64.exe` {
		t.Fatalf("expected executable info, got %v", resp.Info)
	}
	if resp.Timestamp == "" {
		t.Fatalf("expected timestamp")
	}
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("mql5_executable", stubChecker{err: errors.New("missing")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Message string                 `json:"message"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Error.Code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("expected SERVICE_UNAVAILABLE error code, got %s", resp.Error.Code)
	}

	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected checks in error details")
	}
	if status, ok := checks["mql5_executable"].(string); !ok || status != "unhealthy" {
		t.Fatalf("expected mql5_executable check to be unhealthy, got %v", checks["mql5_executable"])
	}
}

func TestHealthCheckTimeoutIsDegraded(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.checkTimeout = 10 * time.Millisecond
	manager.RegisterChecker("mirror", HealthCheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for degraded, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["mirror"] != "timeout" {
		t.Fatalf("expected degraded/timeout, got %s/%s", resp.Status, resp.Checks["mirror"])
	}
}

func TestDetermineOverallStatus(t *testing.T) {
	manager := NewHealthManager("dev")

	tests := []struct {
		checks map[string]string
		want   string
	}{
		{map[string]string{}, "healthy"},
		{map[string]string{"a": "healthy"}, "healthy"},
		{map[string]string{"a": "timeout"}, "degraded"},
		{map[string]string{"a": "timeout", "b": "unhealthy"}, "unhealthy"},
	}
	for _, tt := range tests {
		if got := manager.determineOverallStatus(tt.checks); got != tt.want {
			t.Fatalf("determineOverallStatus(%v) = %s, want %s", tt.checks, got, tt.want)
		}
	}
}

func TestDirWritableChecker(t *testing.T) {
	dir := t.TempDir()
	if err := (DirWritableChecker{Dir: dir}).CheckHealth(context.Background()); err != nil {
		t.Fatalf("expected writable dir, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}

	if err := (DirWritableChecker{Dir: filepath.Join(dir, "missing")}).CheckHealth(context.Background()); err == nil {
		t.Fatal("expected error for missing dir")
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := (DirWritableChecker{Dir: file}).CheckHealth(context.Background()); err == nil {
		t.Fatal("expected error for non-directory")
	}
}

func TestExecutableChecker(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "metaeditor64.exe")
	if err := os.WriteFile(exe, []byte("MZ"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := (ExecutableChecker{Path: exe}).CheckHealth(context.Background()); err != nil {
		t.Fatalf("expected present executable, got %v", err)
	}
	if err := (ExecutableChecker{Path: filepath.Join(dir, "nope.exe")}).CheckHealth(context.Background()); err == nil {
		t.Fatal("expected error for missing executable")
	}
	if err := (ExecutableChecker{Path: dir}).CheckHealth(context.Background()); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestInitHealthManager(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()

	globalHealthManager = nil
	InitHealthManager("test-version")

	if globalHealthManager == nil {
		t.Fatal("expected global manager to be initialized")
	}
}

func TestGetHealthManager(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()

	t.Run("returns nil when not initialized", func(t *testing.T) {
		globalHealthManager = nil
		if GetHealthManager() != nil {
			t.Fatal("expected nil manager")
		}
	})

	t.Run("returns manager after init", func(t *testing.T) {
		InitHealthManager("1.0.0")
		if GetHealthManager() == nil {
			t.Fatal("expected non-nil manager")
		}
	})
}

func TestGlobalHandlers(t *testing.T) {
	original := globalHealthManager
	defer func() { globalHealthManager = original }()

	handlers := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"HealthHandler", HealthHandler},
		{"LivenessHandler", LivenessHandler},
		{"ReadinessHandler", ReadinessHandler},
		{"StartupHandler", StartupHandler},
	}

	t.Run("initialized", func(t *testing.T) {
		InitHealthManager("test-version")
		for _, h := range handlers {
			rec := httptest.NewRecorder()
			h.handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("%s: expected status 200, got %d", h.name, rec.Code)
			}
		}
	})

	t.Run("not initialized", func(t *testing.T) {
		globalHealthManager = nil
		for _, h := range handlers {
			rec := httptest.NewRecorder()
			h.handler(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
			if rec.Code != http.StatusServiceUnavailable {
				t.Fatalf("%s: expected status 503 when not initialized, got %d", h.name, rec.Code)
			}
		}
	})
}
