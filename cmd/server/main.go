// Admincore - dispute resolution and escrow reconciliation service for
// the marketplace admin console.
package main

import (
	"context"
	"os"

	"github.com/crossmarket/admincore/internal/config"
	"github.com/crossmarket/admincore/internal/logging"
	"github.com/crossmarket/admincore/internal/server"
	"github.com/crossmarket/admincore/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting admincore",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"escrow_backend", escrowBackend(cfg),
	)

	ctx := context.Background()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func escrowBackend(cfg *config.Config) string {
	switch {
	case cfg.StripeAPIKey != "":
		return "stripe"
	case cfg.EscrowGatewayURL != "":
		return "http"
	default:
		return "memory"
	}
}
