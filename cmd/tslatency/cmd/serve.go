package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MeKo-Tech/tslatency/internal/config"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/report"
	"github.com/MeKo-Tech/tslatency/internal/server"
	"github.com/MeKo-Tech/tslatency/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for latency measurement",
	Long: `Start an HTTP server that measures uploaded frames and exposes the running
latency summary.

The server provides the following endpoints:
  GET    /health           - Health check endpoint
  GET    /metrics          - Prometheus metrics
  GET    /api/v1/summary   - Running latency summary (DELETE resets it)
  GET    /api/v1/contract  - Wire contract of the configured stamper
  POST   /api/v1/stamp     - Stamp an uploaded image, returns PNG
  POST   /api/v1/measure   - Measure an uploaded image
  GET    /ws/measurements  - Live measurement stream (WebSocket)

With --simulate a real-time simulation runs in the background and feeds the
summary, the metrics and the live stream until the server stops.

Examples:
  tslatency serve
  tslatency serve --port 8080 --simulate
  tslatency serve --host 0.0.0.0 --port 3000 --degrade jpeg:70 --simulate`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	defaults := config.DefaultConfig()

	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringP("host", "H", defaults.Server.Host, "server host")
	f.IntP("port", "p", defaults.Server.Port, "server port")
	f.String("cors-origin", defaults.Server.CORSOrigin, "CORS allowed origins")
	f.Int("max-upload-size", defaults.Server.MaxUploadMB, "maximum upload size in MB")
	f.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "shutdown timeout in seconds")
	f.Bool("simulate", defaults.Server.Simulate, "run a background simulation feeding the server")
	f.String("delay", defaults.Simulate.Delay, "mean transport delay of the background simulation")
	f.String("jitter", defaults.Simulate.Jitter, "jitter of the background simulation")
	f.Float64("drop-rate", defaults.Simulate.DropRate, "frame loss of the background simulation")
	f.String("degrade", defaults.Simulate.Degrade, "degradation chain of the background simulation")
	f.String("transport", defaults.Simulate.Transport, "transport of the background simulation (model, gst)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	serverConfig, err := cfg.ToServerConfig(version.Version)
	if err != nil {
		return err
	}

	summary := report.NewSummary()
	broadcaster := report.NewBroadcaster()
	metrics := report.NewMetrics(prometheus.DefaultRegisterer)

	latencyServer, err := server.NewServer(serverConfig, summary, broadcaster)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	latencyServer.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              serverConfig.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Starting latency server", "host", serverConfig.Host, "port", serverConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	var simWG sync.WaitGroup
	if cfg.Server.Simulate {
		if err := startBackgroundSimulation(ctx, cfg, latencyServer, metrics, &simWG); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	shutdownTimeout := cfg.ShutdownTimeout()
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

	// Stop the simulation first so no frames are reported during shutdown
	cancel()
	simWG.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	slog.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	slog.Info("Graceful shutdown completed")
	return nil
}

// startBackgroundSimulation runs an unbounded real-time simulation whose
// measurements feed the server's summary, live stream and metrics.
func startBackgroundSimulation(ctx context.Context, cfg *config.Config, srv *server.Server,
	metrics *report.Metrics, wg *sync.WaitGroup,
) error {
	simCfg := *cfg
	simCfg.Simulate.Frames = 0
	simCfg.Simulate.Realtime = true

	reporters := []latency.Reporter{srv.Reporter()}
	if metrics != nil {
		reporters = append(reporters, metrics)
	}
	if cfg.Verbose {
		reporters = append(reporters, report.NewLogReporter(slog.Default()))
	}
	sim, cleanup, err := newSimulator(ctx, &simCfg, report.Multi(reporters...))
	if err != nil {
		return fmt.Errorf("failed to start background simulation: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cleanup()
		res, err := sim.Run(ctx)
		if err != nil {
			slog.Error("Background simulation failed", "error", err)
			return
		}
		slog.Info("Background simulation stopped", "run_id", res.RunID, "stamped", res.Stamped)
	}()
	return nil
}
