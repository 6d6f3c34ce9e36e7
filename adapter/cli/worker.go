package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/funnelworks/funnel/internal/app"
	"github.com/funnelworks/funnel/pkg/observability"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the poll worker until interrupted",
		Long: `Run the background worker. Each poll pass dispatches due sequence
steps and evaluates automation rules. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			return RunWorker(cmd.Context(), c)
		},
	}
}

// RunWorker runs the poller, stats loop, and health server until ctx is
// cancelled. The standalone worker binary calls this directly.
func RunWorker(ctx context.Context, c *app.Container) error {
	logger := c.Logger
	logger.Info("starting funnel worker")

	if err := c.Poller.Start(ctx); err != nil {
		return err
	}

	var healthSrv *http.Server
	if c.Config.WorkerHealthAddr != "" {
		healthSrv = startHealthServer(ctx, c)
	}

	statsTicker := time.NewTicker(c.Config.StatsInterval)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				stats := c.Poller.GetStats()
				logger.Info("poller stats",
					"running", stats.IsRunning,
					"passes", stats.Passes,
					"steps_sent", stats.StepsSent,
					"completed", stats.Completed,
					"rules_fired", stats.RulesFired,
					"failures", stats.Failures,
					"last_processed_at", stats.LastProcessedAt,
					"last_error_at", stats.LastErrorAt,
					"last_error", stats.LastError,
				)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down worker")

	c.Poller.Stop()
	if healthSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}

	logger.Info("worker stopped")
	return nil
}

func startHealthServer(ctx context.Context, c *app.Container) *http.Server {
	registry := observability.NewHealthRegistry()
	registry.Register("database", observability.PingChecker(c.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := c.Poller.GetStats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":            "ok",
			"running":           stats.IsRunning,
			"passes":            stats.Passes,
			"steps_sent":        stats.StepsSent,
			"completed":         stats.Completed,
			"rules_fired":       stats.RulesFired,
			"failures":          stats.Failures,
			"last_processed_at": stats.LastProcessedAt,
			"last_error_at":     stats.LastErrorAt,
			"last_error":        stats.LastError,
		})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		results := registry.Check(checkCtx)
		status := observability.OverallStatus(results)

		w.Header().Set("Content-Type", "application/json")
		if status != observability.HealthStatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": status,
			"checks": results,
		})
	})

	srv := &http.Server{
		Addr:              c.Config.WorkerHealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		c.Logger.Info("health server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.Logger.Error("health server error", "error", err)
		}
	}()

	return srv
}
