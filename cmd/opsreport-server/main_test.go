package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"opsreport/internal/auth"
	"opsreport/internal/config"
	"opsreport/pkg/domain"
)

func testConfig(t *testing.T, extra map[string]string) config.Config {
	t.Helper()
	env := map[string]string{
		"OPSREPORT_JWT_SECRET":     "test-secret",
		"OPSREPORT_STORAGE_DRIVER": "memory",
		"OPSREPORT_ARCHIVE_DRIVER": "memory",
	}
	for k, v := range extra {
		env[k] = v
	}
	cfg, err := config.LoadFrom(env)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAppServesAPI(t *testing.T) {
	var traces bytes.Buffer
	cfg := testConfig(t, map[string]string{"OPSREPORT_TRACE_SPANS": "true"})
	a, err := newApp(context.Background(), cfg, discardLogger(), &traces)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	authn, err := auth.NewAuthenticator("test-secret")
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	token, err := authn.IssueToken(domain.Principal{ID: 1, Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/critical_issues",
		strings.NewReader(`{"data":{"department_id":7,"equipment_id":"PUMP-1","title":"Seal leak","status":"open"}}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "opsreport_operations_total") || !strings.Contains(body, "opsreport_http_requests_total") {
		t.Fatalf("expected opsreport metrics, got:\n%s", body)
	}
	if !strings.Contains(traces.String(), "submit_mutation") {
		t.Fatalf("expected trace span output, got %q", traces.String())
	}
}

func TestNewAppRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("resolvers:\n  APPROVED: [ADMIN]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := testConfig(t, map[string]string{"OPSREPORT_POLICY_FILE": path})
	if _, err := newApp(context.Background(), cfg, discardLogger(), nil); err == nil {
		t.Fatalf("expected policy error")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, map[string]string{"OPSREPORT_HTTP_ADDR": "127.0.0.1:0"})
	a, err := newApp(context.Background(), cfg, discardLogger(), nil)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestCLIFlagErrors(t *testing.T) {
	var stderr bytes.Buffer
	if code := cli([]string{"--no-such-flag"}, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if code := cli([]string{"--help"}, &stderr); code != 0 {
		t.Fatalf("expected exit 0 for help, got %d", code)
	}
}

func TestCLIConfigError(t *testing.T) {
	t.Setenv("OPSREPORT_JWT_SECRET", "")
	var stderr bytes.Buffer
	if code := cli(nil, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "config error") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}
