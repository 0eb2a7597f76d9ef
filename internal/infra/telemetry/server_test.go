package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"obskit/internal/domain"
)

func startMetricsOnly(ctx context.Context, port int) error {
	return StartHTTPServer(ctx, HTTPServerOptions{
		Addr:          fmt.Sprintf("0.0.0.0:%d", port),
		EnableMetrics: true,
	}, zap.NewNop())
}

func TestStartHTTPServer_MetricsOnly(t *testing.T) {
	// Use random port to avoid conflicts
	listener := mustListen(t)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- startMetricsOnly(ctx, port)
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)

	// Test /metrics endpoint
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# HELP")

	// Trigger graceful shutdown
	cancel()

	// Wait for server to stop
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestStartHTTPServer_PortInUse(t *testing.T) {
	listener, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Skipf("skip test due to listen error: %v", err)
	}
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// Try to start metrics server on the same port (should fail quickly)
	err = startMetricsOnly(ctx, port)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "address already in use"))
}

func TestStartHTTPServer_GracefulShutdown(t *testing.T) {
	listener := mustListen(t)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		err := startMetricsOnly(ctx, port)
		assert.NoError(t, err)
		close(done)
	}()

	waitForHTTPStatus(t, fmt.Sprintf("http://127.0.0.1:%d/metrics", port), http.StatusOK, false)

	// Cancel context to trigger shutdown
	cancel()

	// Wait for graceful shutdown
	select {
	case <-done:
		// Success
	case <-time.After(10 * time.Second):
		t.Fatal("graceful shutdown timed out")
	}
}

type stubHealth struct {
	mu     sync.Mutex
	checks []domain.HealthStatus
}

func (s *stubHealth) set(checks ...domain.HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = checks
}

func (s *stubHealth) PerformHealthChecks(context.Context) []domain.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HealthStatus(nil), s.checks...)
}

func TestStartHTTPServer_Healthz(t *testing.T) {
	listener := mustListen(t)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := &stubHealth{}
	health.set(domain.HealthStatus{Component: "memory", Status: domain.HealthHealthy})

	errChan := make(chan error, 1)
	go func() {
		errChan <- StartHTTPServer(ctx, HTTPServerOptions{
			Addr:          fmt.Sprintf("127.0.0.1:%d", port),
			EnableHealthz: true,
			Health:        health,
		}, zap.NewNop())
	}()

	waitForHTTPStatus(t, fmt.Sprintf("http://127.0.0.1:%d/healthz", port), http.StatusOK, true)

	health.set(
		domain.HealthStatus{Component: "memory", Status: domain.HealthHealthy},
		domain.HealthStatus{Component: "tool_terraform", Status: domain.HealthError},
	)
	waitForHTTPStatus(t, fmt.Sprintf("http://127.0.0.1:%d/healthz", port), http.StatusServiceUnavailable, true)

	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestStartHTTPServer_NothingEnabled(t *testing.T) {
	err := StartHTTPServer(context.Background(), HTTPServerOptions{}, nil)
	require.NoError(t, err)
}

func TestBuildHealthReport(t *testing.T) {
	require.Equal(t, "ok", BuildHealthReport(nil).Status)

	report := BuildHealthReport([]domain.HealthStatus{
		{Component: "load", Status: domain.HealthHealthy},
		{Component: "memory", Status: domain.HealthWarning},
	})
	require.Equal(t, "degraded", report.Status)
	require.Len(t, report.Checks, 2)

	report = BuildHealthReport([]domain.HealthStatus{
		{Component: "memory", Status: domain.HealthWarning},
		{Component: "workspace", Status: domain.HealthError},
	})
	require.Equal(t, "error", report.Status)
}

func TestGatherText(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "obskit_test_total",
		Help: "Test counter.",
	})
	registry.MustRegister(counter)
	counter.Add(3)

	text, err := GatherText(registry)
	require.NoError(t, err)
	require.Contains(t, text, "# HELP obskit_test_total Test counter.")
	require.Contains(t, text, "obskit_test_total 3")
}

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skip test due to listen error: %v", err)
	}
	return listener
}

func waitForHTTPStatus(t *testing.T, url string, status int, expectJSON bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != status {
			return false
		}
		if expectJSON {
			var report HealthReport
			if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
				return false
			}
			if status == http.StatusOK && report.Status == "error" {
				return false
			}
		}
		return true
	}, 2*time.Second, 25*time.Millisecond)
}
