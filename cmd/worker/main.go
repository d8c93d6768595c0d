package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/bootstrap"
	"github.com/kirillkom/datasheet-rag/internal/config"
	"github.com/kirillkom/datasheet-rag/internal/observability/logging"
	"github.com/kirillkom/datasheet-rag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("datasheet-worker", "info").Error("config_invalid", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("datasheet-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("datasheet-worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:          logger,
		BreakerObserver: workerMetrics.ObserveBreakerState,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics.Handler(), logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeDatasheetIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		if doc, err := app.Docs.GetByID(handlerCtx, documentID); err == nil {
			workerMetrics.ObserveQueueLag(time.Since(doc.CreatedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerProcessTimeout)
		defer cancel()

		workerMetrics.StartDatasheet()
		start := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDatasheet(time.Since(start), err)
		if err != nil {
			logger.Error("datasheet_process_failed", "document_id", documentID, "error", err)
			return err
		}

		if doc, err := app.Docs.GetByID(handlerCtx, documentID); err == nil {
			workerMetrics.AddProducts(doc.ProductCount)
			logger.Info("datasheet_processed",
				"document_id", documentID,
				"products", doc.ProductCount,
				"chunks", doc.ChunkCount,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}

func startMetricsServer(port string, handler http.Handler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	return server
}
