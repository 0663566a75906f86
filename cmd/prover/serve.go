package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/provable-labs/remote-prover/internal/cache"
	"github.com/provable-labs/remote-prover/internal/config"
	"github.com/provable-labs/remote-prover/internal/fetcher"
	"github.com/provable-labs/remote-prover/internal/httpapi"
	"github.com/provable-labs/remote-prover/internal/logging"
	"github.com/provable-labs/remote-prover/internal/metrics"
	"github.com/provable-labs/remote-prover/internal/observability"
	"github.com/provable-labs/remote-prover/internal/prover"
	"github.com/provable-labs/remote-prover/internal/vm"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr    string
		tracingEnable bool
		tracingAddr   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the prover HTTP service",
		Long:  "Run the prover HTTP service: GET / for liveness, POST /prove to resolve and prove an authorization, GET /metrics for Prometheus scraping",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			if tracingEnable {
				cfg.TracingEnabled = true
			}
			if tracingAddr != "" {
				cfg.TracingEndpoint = tracingAddr
			}

			logging.InitStructured(cfg.LogFormat, cfg.LogLevel)

			ctx, cancelTelemetry := context.WithCancel(context.Background())
			defer cancelTelemetry()
			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.TracingEnabled,
				Exporter:    "otlp-http",
				Endpoint:    cfg.TracingEndpoint,
				ServiceName: "remote-prover",
				SampleRate:  cfg.TracingSampleRate,
			}); err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer observability.Shutdown(context.Background())

			process := vm.NewProcess()

			programCache := buildProgramCache(cfg)
			defer programCache.Close()

			fetch := fetcher.New(cfg.HTTPClient, cfg.EffectiveRESTEndpoint(), programCache, cfg.ProgramCacheTTL)

			metrics.InitPrometheus(cfg.MetricsNamespace, func() int {
				return len(process.ProgramIDs())
			})

			engine := prover.New(process, fetch, cfg)
			server := httpapi.New(engine, cfg)

			httpServer := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: server,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Op().Info("prover service started",
					"addr", cfg.ListenAddr,
					"network", cfg.Network.String(),
					"max_concurrent_proofs", cfg.MaxConcurrentProofs,
					"enforce_program_editions", cfg.EnforceProgramEditions,
				)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logging.Op().Info("shutdown signal received", "signal", sig.String())
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown prover: %w", err)
				}
				return nil
			case err := <-errCh:
				return fmt.Errorf("prover server error: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides PROVER_LISTEN_ADDR)")
	cmd.Flags().BoolVar(&tracingEnable, "tracing", false, "Enable OpenTelemetry tracing")
	cmd.Flags().StringVar(&tracingAddr, "tracing-endpoint", "", "OTLP HTTP collector endpoint")

	return cmd
}

// buildProgramCache picks a Redis-backed cache when PROVER_PROGRAM_CACHE_ADDR
// is configured, so multiple prover instances behind the same load balancer
// share fetched program source and avoid redundant explorer round trips;
// otherwise it falls back to a per-instance in-memory cache.
func buildProgramCache(cfg *config.ProverConfig) cache.Cache {
	if cfg.ProgramCacheAddr == "" {
		return cache.NewInMemoryCache()
	}
	return cache.NewRedisCache(cache.RedisCacheConfig{
		Addr: cfg.ProgramCacheAddr,
	})
}
