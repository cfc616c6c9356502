package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mwheeler/gexstream/internal/config"
	"github.com/mwheeler/gexstream/internal/database"
	"github.com/mwheeler/gexstream/internal/engine"
	"github.com/mwheeler/gexstream/internal/feed"
	"github.com/mwheeler/gexstream/internal/nbbo"
	"github.com/mwheeler/gexstream/internal/queue"
	"github.com/mwheeler/gexstream/internal/sink"
	"github.com/mwheeler/gexstream/internal/version"
	"github.com/mwheeler/gexstream/internal/vol"
)

func main() {
	configPath := flag.String("config", "configs/gexstream.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gexstream",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"underlying", cfg.Engine.Underlying,
		"ws_url", cfg.Feed.WSURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Snapshot writer
	writer := sink.NewSnapshotWriter(sink.Config{
		Underlying:    cfg.Engine.Underlying,
		BatchSize:     cfg.Sink.BatchSize,
		FlushInterval: cfg.Sink.FlushInterval,
	}, pool, logger)

	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start snapshot writer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		writer.Stop(shutdownCtx)
	}()

	// Shared state between feed and engine
	quotes := nbbo.NewStore()
	spot := nbbo.NewSpotTracker()
	trades := queue.New[engine.RawMessage](cfg.Feed.QueueSize)

	// Aggregation engine
	eng := engine.New(engine.Config{
		Epsilon:          cfg.Engine.Epsilon,
		SnapshotInterval: cfg.Engine.SnapshotInterval,
		RecvTimeout:      cfg.Engine.RecvTimeout,
		Rate:             cfg.Engine.Rate,
		DivYield:         cfg.Engine.DivYield,
		Multiplier:       cfg.Engine.Multiplier,
		Vol: vol.Config{
			MoveThreshold: cfg.Engine.MoveThreshold,
			TTL:           cfg.Engine.VolTTL,
			BaseVol:       cfg.Engine.BaseVol,
			Skew:          cfg.Engine.Skew,
		},
	}, trades, quotes, spot, writer.Append, logger)

	// Feed client
	feedClient := feed.New(feed.Config{
		URL:              cfg.Feed.WSURL,
		APIKey:           cfg.Feed.APIKey,
		Subscriptions:    cfg.Feed.Subscriptions,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		ReadTimeout:      cfg.Feed.ReadTimeout,
	}, trades, quotes, spot, logger)

	if err := feedClient.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		feedClient.Stop(shutdownCtx)
	}()

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg.Health.Path, pool, eng, feedClient, writer, trades),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("gexstream running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// The engine loop blocks until the context is cancelled.
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("engine stopped", "error", err)
	}

	logger.Info("shutting down...")

	// Graceful shutdown of health server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("gexstream stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, pinger interface{ Ping(context.Context) error }, eng *engine.Engine, feedClient *feed.Client, writer *sink.SnapshotWriter, trades *queue.Buffer[engine.RawMessage]) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pinger.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		health.Components["feed"] = feedClient.Stats()
		health.Components["queue"] = trades.Stats()
		health.Components["engine"] = eng.Stats()
		health.Components["sink"] = writer.Stats()
		health.Components["book"] = map[string]interface{}{
			"strikes":     eng.Book().Size(),
			"total_gamma": eng.Book().TotalGamma(),
		}
		health.Components["vol_cache"] = map[string]interface{}{
			"entries": eng.VolCache().Len(),
			"solves":  eng.VolCache().Solves(),
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/strikes", func(w http.ResponseWriter, r *http.Request) {
		rows := eng.Book().Rows()

		type strikeRow struct {
			Strike    int     `json:"strike"`
			Call      bool    `json:"call"`
			OpenLong  int64   `json:"open_long"`
			OpenShort int64   `json:"open_short"`
			NetGamma  float64 `json:"net_gamma"`
		}

		out := make([]strikeRow, 0, len(rows))
		for k, row := range rows {
			out = append(out, strikeRow{
				Strike:    k.Strike,
				Call:      k.Call,
				OpenLong:  row.OpenLong,
				OpenShort: row.OpenShort,
				NetGamma:  row.NetGamma,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":   len(out),
			"strikes": out,
		})
	})

	return mux
}
