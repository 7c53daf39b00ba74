// Package main provides the entry point for the voxtools MCP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/mcpserver"
	"github.com/voxbridge/voxbridge/internal/tools"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "dynamic_backend_config.yaml", "live configuration file")
	defaultsPath := flag.String("defaults", "default_backend_config.yaml", "defaults configuration file")
	flag.Parse()

	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON). Stdout stays
	// clean for the MCP stdio transport.
	logger, _, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("voxtools starting",
		"version", version,
		"config", *configPath,
		"defaults", *defaultsPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load the configuration document served to the chatbot backend
	store := tools.NewStore(*configPath, *defaultsPath)
	if err := store.LoadInitial(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	srv := mcpserver.New(version, logger)

	deps := &tools.Dependencies{
		Store:  store,
		Logger: logger,
	}
	tools.RegisterAll(srv.MCPServer(), deps)

	logger.Info("server ready, awaiting connections")

	// Run server (blocks until disconnect or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
