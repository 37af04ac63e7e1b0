// Command reconmap serves an interactive map index of aerial reconnaissance
// photo scans, filterable by acquisition date.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/recon-map/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/recon-map/internal/adapter/kafka"
	"github.com/couchcryptid/recon-map/internal/adapter/source"
	"github.com/couchcryptid/recon-map/internal/config"
	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
	"github.com/couchcryptid/recon-map/internal/pipeline"
)

const appName = "reconmap"

// Version is overridden at build time with -ldflags.
var Version = "dev"

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Aerial reconnaissance photo index map",
		Long: `reconmap loads photo-index sources (GeoJSON FeatureCollections or flat
latitude/longitude record arrays), normalizes them into one dataset and serves
a date-filterable map API.

Configuration is read from the environment (and a .env file when present).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(serveCmd(), exportCmd(), validateCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load sources and serve the map API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, nil, err
	}
	return cfg, observability.NewLogger(cfg), nil
}

func newIngester(cfg *config.Config, progress *pipeline.ProgressBus, logger *slog.Logger, metrics *observability.Metrics) *pipeline.Ingester {
	return pipeline.NewIngester(
		source.NewRouter(cfg.FetchTimeout, logger),
		domain.NewNormalizer(cfg.DateProperty, logger),
		progress, logger, metrics, cfg.FetchConcurrency,
	)
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()
	progress := pipeline.NewProgressBus(nil, 64)

	views := httpadapter.NewViewStore()
	renderers := pipeline.Renderers{views}

	var publisher *kafkaadapter.ViewPublisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewViewPublisher(cfg, logger)
		renderers = append(renderers, publisher)
		logger.Info("kafka view publishing enabled", "topic", cfg.KafkaViewTopic, "brokers", cfg.KafkaBrokers)
	}

	orch := pipeline.NewOrchestrator(cfg.Sources, newIngester(cfg, progress, logger, metrics), renderers, progress, logger, metrics,
		pipeline.OrchestratorOptions{
			Debounce:       cfg.FilterDebounce,
			DateProperty:   cfg.DateProperty,
			ReloadInterval: cfg.ReloadInterval,
		})

	srv, err := httpadapter.NewServer(cfg.HTTPAddr, orch, views, cfg.ViewCacheSize, logger)
	if err != nil {
		return err
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if publisher != nil {
		go func() {
			if err := publisher.Run(ctx); err != nil {
				logger.Error("kafka publisher error", "error", err)
			}
		}()
	}

	// Load sources, then reload on the configured interval.
	go func() {
		if err := orch.Run(ctx); err != nil {
			logger.Error("orchestrator error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	orch.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
