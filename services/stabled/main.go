package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dscengine/core/events"
	"dscengine/native/stablecoin"
	"dscengine/observability"
	"dscengine/observability/logging"
	telemetry "dscengine/observability/otel"
	"dscengine/services/stabled/app"
	"dscengine/services/stabled/audit"
	"dscengine/services/stabled/config"
	"dscengine/services/stabled/middleware"
	"dscengine/services/stabled/server"
	"dscengine/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stabled/config.yaml", "path to stabled config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("STABLED_ENV"))
	logger := logging.SetupWithOptions(logging.Options{
		Service:    "stabled",
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stabled",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}.WithEnv())
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	engineCfg, err := stablecoin.LoadConfig(cfg.EngineConfig)
	if err != nil {
		log.Fatalf("load engine config: %v", err)
	}

	var db storage.Database
	if cfg.DataDir == "" {
		logger.Warn("data_dir not set; state is kept in memory")
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			log.Fatalf("open state db: %v", err)
		}
		db = ldb
	}
	defer func() { _ = db.Close() }()

	auditDB, err := audit.Open(cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		log.Fatalf("open audit journal: %v", err)
	}
	journal := audit.NewJournal(auditDB, logger)

	application, err := app.New(app.Options{
		DB:              db,
		EngineConfig:    engineCfg,
		FeedDecimals:    cfg.Oracle.FeedDecimals,
		MaxDeviationBps: cfg.Oracle.MaxDeviationBps,
		Emitter:         events.MultiEmitter{journal, observability.Events()},
		Logger:          logger,
		Metrics:         observability.Stablecoin(),
	})
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	httpMetrics := observability.HTTP()
	authCfg := middleware.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		ClockSkew:  cfg.Auth.ClockSkewDuration(),
	}
	if !cfg.Auth.Enabled {
		if !strings.EqualFold(env, "dev") {
			log.Fatalf("auth.enabled=false is restricted to STABLED_ENV=dev")
		}
		authCfg.DevSubjectHeader = "X-Stabled-Subject"
	}
	srv, err := server.New(server.Config{
		App:           application,
		Journal:       journal,
		Authenticator: middleware.NewAuthenticator(authCfg, logger),
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}, httpMetrics),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "stabled", LogRequests: true}, httpMetrics, logger),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(srv.Handler(), "stabled"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("stabled listening", "address", cfg.ListenAddress, "collateral", len(application.CollateralList()))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}
