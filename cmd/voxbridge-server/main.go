// Package main provides the entry point for the voxbridge server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxbridge/voxbridge/internal/chatbot"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/internal/server"
	"github.com/voxbridge/voxbridge/internal/stt"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, levelVar, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("voxbridge-server starting",
		"version", version,
		"addr", cfg.Addr(),
		"config_file", cfg.ConnectionFile,
	)

	if cfg.OpenAIAPIKey == "" {
		logger.Error("OPENAI_API_KEY is not set")
		os.Exit(1)
	}

	// Load MCP server launch configuration
	cc, err := config.LoadConnectionConfig(cfg.ConnectionFile)
	if err != nil {
		logger.Error("failed to load connection config", "error", err)
		os.Exit(1)
	}
	cc.ApplyBackendOverrides(&cfg)

	// Completion client, shared across all conversations
	var llmOpts []llm.ClientOption
	if cfg.OpenAIBaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(cfg.OpenAIBaseURL))
	}
	completer := llm.NewClient(cfg.OpenAIAPIKey, llmOpts...)

	collector := metrics.NewCollector()

	// Each WebSocket client gets its own chatbot and MCP session
	factory := server.NewChatBotFactory(version, cc, completer, logger,
		chatbot.WithMetrics(collector),
		chatbot.WithLogLevelVar(levelVar),
	)

	var srvOpts []server.Option
	if cfg.DeepgramAPIKey != "" {
		srvOpts = append(srvOpts, server.WithTranscriberFactory(
			func(ctx context.Context, onUtterance stt.UtteranceFunc) (*stt.Transcriber, error) {
				tr, err := stt.New(cfg.DeepgramAPIKey, stt.Options{}, onUtterance, logger)
				if err != nil {
					return nil, err
				}
				if err := tr.Start(ctx); err != nil {
					return nil, err
				}
				return tr, nil
			},
		))
		logger.Info("voice input enabled")
	}

	srv := server.New(cfg, factory, collector, logger, srvOpts...)

	// Handle shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
