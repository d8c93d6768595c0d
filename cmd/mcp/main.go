package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/datasheet-rag/internal/adapters/mcp"
	"github.com/kirillkom/datasheet-rag/internal/bootstrap"
	"github.com/kirillkom/datasheet-rag/internal/config"
	"github.com/kirillkom/datasheet-rag/internal/observability/logging"
)

// stdout carries the MCP protocol, so every log line goes to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLoggerTo(os.Stderr, "datasheet-mcp", "info").Error("config_invalid", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, "datasheet-mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("mcp_serving_stdio")
	if err := mcpadapter.New(app.QueryUC, app.Products, logger).ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
