// @title           Email Service API
// @version         1.0.0
// @description     Registers sending apps, issues their API keys and sends email on their behalf.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  ApiKey
// @in                          header
// @name                        x-api-key
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090), configured with EMAILSVC_TELEMETRY_METRICS_PROMETHEUS_PORT. The path is always GET /metrics.

// Package main is the entry point for the email service binary. It dispatches
// three subcommands (serve, migrate and version) with a switch on os.Args.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mickBoat00/email-service/internal/api"
	"github.com/mickBoat00/email-service/internal/awsauth"
	"github.com/mickBoat00/email-service/internal/config"
	"github.com/mickBoat00/email-service/internal/db"
	"github.com/mickBoat00/email-service/internal/email/ses"
	"github.com/mickBoat00/email-service/internal/keymgmt/apigateway"
	"github.com/mickBoat00/email-service/internal/safego"
	"github.com/mickBoat00/email-service/internal/services"
	"github.com/mickBoat00/email-service/internal/store"
	"github.com/mickBoat00/email-service/internal/telemetry"

	// Import store backends to register them
	_ "github.com/mickBoat00/email-service/internal/store/memory"
	_ "github.com/mickBoat00/email-service/internal/store/mongodb"
	_ "github.com/mickBoat00/email-service/internal/store/postgres"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.date=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("email-service failed")
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("email-service %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	appStore, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open app store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := appStore.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("failed to close app store")
		}
	}()
	log.Info().Str("backend", cfg.Store.Backend).Msg("app store ready")

	awsCfg, err := awsauth.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Info().Str("region", awsCfg.Region).Str("auth_method", cfg.AWS.AuthMethod).Msg("AWS config loaded")

	if cfg.Keys.UsagePlanID == "" {
		log.Warn().Msg("no usage plan configured; new API keys will not be attached to one")
	}

	svc := services.NewAppService(appStore, ses.New(awsCfg), apigateway.New(awsCfg), cfg.Keys)

	// Metrics are served on their own port so the scrape path stays off the public listener.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		safego.Go("metrics-server", func() {
			log.Info().Str("addr", metricsServer.Addr).Msg("starting Prometheus metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server error")
			}
		}, nil)
	}

	router := api.NewRouter(cfg, svc, api.BuildInfo{Version: version, Commit: commit, Date: date})
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	safego.Go("http-server", func() {
		log.Info().Str("addr", server.Addr).Str("version", version).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}, func(r any) {
		serverErr <- fmt.Errorf("http server panicked: %v", r)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}

	log.Info().Msg("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Store.Backend != config.BackendPostgres {
		log.Info().Str("backend", cfg.Store.Backend).Msg("migrations only apply to the postgres backend; nothing to do")
		return nil
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Info().Str("direction", direction).Msg("running migrations")
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	log.Info().Uint("version", v).Bool("dirty", dirty).Msg("migration completed")
	return nil
}
