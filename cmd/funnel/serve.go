package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/convertly/funnel"
	"github.com/convertly/funnel/internal/config"
	"github.com/convertly/funnel/internal/logging"
	httpAdapter "github.com/convertly/funnel/pkg/adapters/http"
	redisAdapter "github.com/convertly/funnel/pkg/adapters/redis"
	"github.com/convertly/funnel/pkg/dropoff"
	"github.com/convertly/funnel/pkg/observability"
	"github.com/convertly/funnel/pkg/trust"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversion engine HTTP server",
	Long: `Starts the engine behind a JSON API. State is process-memory
resident; a restart loses active bookings and sessions, so durable
consumers should subscribe to the telemetry stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}

		logger := logging.New(logging.ParseLevel(cfg.LogLevel))

		opts := []funnel.Option{
			funnel.WithLogger(logger),
			funnel.WithConfidenceThreshold(cfg.ConfidenceThreshold),
			funnel.WithDetectorConfig(dropoff.Config{
				AbandonTimeout:  cfg.AbandonTimeout,
				BounceThreshold: cfg.BounceThreshold,
				HesitationDwell: cfg.HesitationDwell,
			}),
		}

		if cfg.RedisAddr != "" {
			client := backend.NewClient(&backend.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			opts = append(opts,
				funnel.WithSessionStore(redisAdapter.NewFromClient(client)),
				funnel.WithLocker(redisAdapter.NewLocker(client, "funnel:")),
			)
			logger.Info("using redis session store", "addr", cfg.RedisAddr)
		}

		if cfg.TrustRulesPath != "" {
			f, err := os.Open(cfg.TrustRulesPath)
			if err != nil {
				return fmt.Errorf("open trust rules: %w", err)
			}
			rules, err := trust.RulesFromYAML(f)
			f.Close()
			if err != nil {
				return err
			}
			opts = append(opts, funnel.WithTrustRules(rules))
			logger.Info("loaded trust rules", "path", cfg.TrustRulesPath, "count", len(rules))
		}

		engine := funnel.New(opts...)

		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
		engine.Telemetry().Subscribe(metrics)

		handler := httpAdapter.NewHandler(engine.Orchestrator(), engine.Telemetry(),
			httpAdapter.WithLogger(logger))

		srv := &http.Server{
			Addr:    cfg.Addr,
			Handler: handler,
		}

		// Session garbage collection. The detector has no other
		// reclamation path.
		gcCtx, gcCancel := context.WithCancel(context.Background())
		defer gcCancel()
		go func() {
			ticker := time.NewTicker(cfg.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gcCtx.Done():
					return
				case <-ticker.C:
					if _, err := engine.Detector().CleanupOldSessions(gcCtx, cfg.SessionMaxAge); err != nil {
						logger.Warn("session cleanup failed", "err", err)
					}
				}
			}
		}()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting funnel server", "addr", cfg.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("force close: %w", err)
				}
			}
			logger.Info("funnel server stopped")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides FUNNEL_ADDR)")
}
