package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/glucoshare/internal/adapter/driven/share"
	sqliteadapter "github.com/ericfisherdev/glucoshare/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/glucoshare/internal/adapter/driven/telemetry"
	httphandler "github.com/ericfisherdev/glucoshare/internal/adapter/driving/http"
	"github.com/ericfisherdev/glucoshare/internal/application"
	"github.com/ericfisherdev/glucoshare/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"region", cfg.Region,
		"poll_interval", cfg.PollInterval,
		"poll_slack", cfg.PollSlack,
		"credential_storage", cfg.SecretKey != nil,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and run migrations.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", db.Path())

	// 4. Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewCollector(registry)
	if err != nil {
		return err
	}

	// 5. Share client.
	endpoints, err := share.DefaultEndpoints(share.Region(cfg.Region))
	if err != nil {
		return err
	}
	if cfg.BaseURL != "" {
		endpoints.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	httpClient, err := share.NewHTTPClient(cfg.HTTPTimeout)
	if err != nil {
		return err
	}
	shareClient := share.NewClient(httpClient, endpoints)

	// 6. Poller. Stored credentials take priority over config.
	provider := application.NewCredentialProvider(cfg.Credentials())
	sessions := application.NewSessionManager(shareClient, application.WithSessionMetrics(metrics))
	poller, err := application.NewPoller(sessions, shareClient, provider, pollConfig(cfg), application.WithPollMetrics(metrics))
	if err != nil {
		return err
	}

	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	credentialSvc := application.NewCredentialService(credentialStore, provider, poller)
	loaded, err := credentialSvc.LoadStored(ctx)
	if err != nil {
		return err
	}
	if loaded {
		slog.Info("using stored share credentials", "account", provider.Get())
	} else if !provider.HasCredentials() {
		slog.Warn("no share credentials configured, polling will fail until credentials are provided via the API")
	}

	// 7. HTTP server.
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	apiHandler := httphandler.NewHandler(poller, credentialSvc, metricsHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 8. Consume readings until shutdown or retry exhaustion.
	pollErr := make(chan error, 1)
	go func() {
		pollErr <- consume(ctx, poller)
	}()

	slog.Info("glucoshare started", "listen_addr", cfg.ListenAddr)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-pollErr:
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return runErr
}

// consume logs every reading the poller emits. It returns nil when ctx is
// canceled and the poller's error otherwise.
func consume(ctx context.Context, poller *application.Poller) error {
	for reading, err := range poller.Readings(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		slog.Info("glucose reading",
			"value", reading.Value,
			"mmol_l", reading.MmolL().String(),
			"trend", reading.Trend.String(),
			"arrow", reading.Trend.Arrow(),
			"timestamp", reading.Timestamp,
			"next_poll_in", poller.WaitHint().Round(time.Second),
		)
	}
	return nil
}

func pollConfig(cfg *config.Config) application.PollConfig {
	pc := application.DefaultPollConfig()
	pc.PollInterval = cfg.PollInterval
	pc.PollSlack = cfg.PollSlack
	pc.RetryMinBackoff = cfg.RetryMinBackoff
	pc.RetryMaxBackoff = cfg.RetryMaxBackoff
	pc.MaxWindowMinutes = cfg.MaxWindowMinutes
	pc.ReadNowDefaults.Minutes = cfg.Minutes
	pc.ReadNowDefaults.MaxCount = cfg.MaxCount
	return pc
}
