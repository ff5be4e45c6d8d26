// Command opsreport-server serves the approval workflow API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"opsreport/internal/adapters/httpapi"
	"opsreport/internal/auth"
	"opsreport/internal/blob"
	"opsreport/internal/config"
	"opsreport/internal/core"
	"opsreport/internal/log"
	"opsreport/internal/metrics"
	"opsreport/internal/policy"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stderr))
}

func cli(args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("opsreport-server", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "listen address (overrides OPSREPORT_HTTP_ADDR)")
	policyFile := fs.String("policy-file", "", "approval routing policy YAML (overrides OPSREPORT_POLICY_FILE)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *policyFile != "" {
		cfg.PolicyFile = *policyFile
	}

	logger := log.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, os.Stderr)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	if err := a.serve(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

// app holds the wired components of a running server.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   core.PersistentStore
	handler http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, traceOut io.Writer) (*app, error) {
	router, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	authn, err := auth.NewAuthenticator(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(ctx, cfg.StorageConfig(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	recorder := metrics.NewRecorder()

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewSlogAuditRecorder(logger)),
		core.WithMetricsRecorder(recorder),
		core.WithRouter(router),
		core.WithAllowDeleteResolved(cfg.AllowDeleteResolved),
	}
	if cfg.ArchiveEnabled() {
		archive, err := blob.Open(ctx, cfg.BlobConfig())
		if err != nil {
			_ = core.CloseStore(store)
			return nil, fmt.Errorf("open archive: %w", err)
		}
		opts = append(opts, core.WithArchive(archive))
	}
	if cfg.TraceSpans {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(traceOut)))
	}
	service := core.NewService(store, opts...)

	server := httpapi.NewServer(service, authn,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(recorder, recorder.Handler()),
		httpapi.WithSubmitRateLimit(cfg.SubmitRatePerMinute),
	)
	logger.Info("opsreport configured",
		"storage", cfg.Storage.Driver,
		"archive", cfg.Archive.Driver,
		"policy_file", cfg.PolicyFile,
		"submit_rate_per_minute", cfg.SubmitRatePerMinute,
	)
	return &app{cfg: cfg, logger: logger, store: store, handler: server}, nil
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Warn("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *app) close() {
	if err := core.CloseStore(a.store); err != nil {
		a.logger.Error("close storage failed", "error", err)
	}
}
