package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/ingest-agent/internal/agent"
	"github.com/SteelMorgan/ingest-agent/internal/config"
	"github.com/SteelMorgan/ingest-agent/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("version", "0.1.0").
		Msg("Starting ingest agent")

	// Initialize tracer (if enabled)
	shutdown, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "ingest-agent",
		ServiceVersion: "0.1.0",
		Endpoint:       cfg.OTLPEndpoint,
		Protocol:       cfg.OTLPProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdown(context.Background())
	}

	// Build the agent
	manager, err := agent.NewManager(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent manager")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	manager.Start(ctx)

	log.Info().Msg("Agent started successfully")

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Received shutdown signal")

	// Graceful shutdown: the flush daemon joins before collaborators close,
	// so no flush is left in flight
	log.Info().Msg("Shutting down gracefully...")
	cancel()

	if err := manager.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("Agent stopped")
}
