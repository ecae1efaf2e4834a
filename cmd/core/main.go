package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperlicked/invisible-core/pkg/config"
	"github.com/hyperlicked/invisible-core/pkg/coordinator"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/storage"
	"github.com/hyperlicked/invisible-core/pkg/util"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

func main() {
	cfg := config.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/core.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data/pebble"
	}
	store, err := storage.Open(dataDir)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()

	model := state.NewModel(
		uint32(cfg.Trees.NotesDepth),
		uint32(cfg.Trees.PositionsDepth),
		uint32(cfg.Trees.OrderTabsDepth),
	)

	registry := prometheus.NewRegistry()
	metrics := coordinator.NewMetrics(registry)

	hub := witness.NewHub(logger)

	coord := coordinator.New(model, cfg, metrics, hub, logger).WithStore(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go coord.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/witness/stream", hub.ServeHTTP)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		sugar.Infow("http_server_starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("http_server_failed", "err", err)
		}
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	sugar.Info("core_started")

	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting_down")
			_ = server.Close()
			return
		case <-ticker.C:
			sugar.Infow("heartbeat", "notes_live", model.Notes.LiveCount(), "positions_live", model.Positions.LiveCount())
		}
	}
}
