// Package chatbot ties the MCP session, the server-provided configuration and
// the conversation manager into one assistant facade. One ChatBot serves one
// conversation; turns on the same ChatBot are serialized.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/voxbridge/voxbridge/internal/chat"
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/internal/serverconfig"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/voxerr"
)

// Option configures a ChatBot.
type Option func(*ChatBot)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(b *ChatBot) {
		b.metrics = c
	}
}

// WithLogLevelVar lets the server-provided logging section drive the process
// log level at runtime.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(b *ChatBot) {
		b.levelVar = v
	}
}

// WithManagerOptions forwards options to the conversation manager.
func WithManagerOptions(opts ...chat.ManagerOption) Option {
	return func(b *ChatBot) {
		b.managerOpts = opts
	}
}

// ChatBot is the assistant facade: it owns the MCP session, keeps the
// server-provided configuration fresh, and delegates turn processing to the
// conversation manager.
type ChatBot struct {
	session   *session.Session
	serverCfg *serverconfig.ServerConfig
	manager   *chat.Manager
	logger    *slog.Logger

	metrics     *metrics.Collector
	levelVar    *slog.LevelVar
	managerOpts []chat.ManagerOption

	mu sync.Mutex
}

// New creates a ChatBot. version identifies this client to the MCP server.
func New(version string, completer chat.Completer, logger *slog.Logger, opts ...Option) *ChatBot {
	b := &ChatBot{
		session:   session.New(version, logger),
		serverCfg: serverconfig.New(logger),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	managerOpts := b.managerOpts
	if b.metrics != nil {
		managerOpts = append(managerOpts,
			chat.WithToolObserver(func(name string, d time.Duration) {
				b.metrics.RecordTiming(metrics.OpToolCall, d)
				b.logger.Debug("tool call finished", "tool", name, "duration_ms", d.Milliseconds())
			}),
			chat.WithRoundObserver(func(d time.Duration, usage *llm.Usage) {
				if usage != nil {
					b.metrics.RecordCompletionUsage(d, usage.PromptTokens, usage.CompletionTokens)
					return
				}
				b.metrics.RecordTiming(metrics.OpCompletion, d)
			}),
		)
	}
	b.manager = chat.NewManager(completer, b.session, chat.NewStore(), logger, managerOpts...)
	return b
}

// ConnectCommand spawns the MCP server subprocess and initializes the bot
// against it.
func (b *ChatBot) ConnectCommand(ctx context.Context, command []string, env []string) error {
	if err := b.session.ConnectCommand(ctx, command, env); err != nil {
		return err
	}
	return b.initialize(ctx)
}

// Connect initializes the bot over an already-constructed MCP transport.
func (b *ChatBot) Connect(ctx context.Context, transport mcp.Transport) error {
	if err := b.session.Connect(ctx, transport); err != nil {
		return err
	}
	return b.initialize(ctx)
}

// initialize loads the server configuration, installs the system prompt and
// applies the server's logging preferences.
func (b *ChatBot) initialize(ctx context.Context) error {
	if err := b.serverCfg.Load(ctx, b.session); err != nil {
		return err
	}

	data := b.serverCfg.Data()
	if data.Chatbot.SystemPrompt == "" {
		return &voxerr.ConfigError{Field: "chatbot.system_prompt", Message: "server configuration has no system prompt"}
	}
	b.manager.Store().SetSystemMessage(data.Chatbot.SystemPrompt)
	b.applyLogLevel()

	b.logger.Info("chatbot initialized",
		"model", data.Completion.Model,
		"max_history", data.Chatbot.MaxConversationHistory)
	return nil
}

// ProcessMessage runs one conversation turn, streaming assistant text to
// onDelta. Before the turn it polls the server for configuration changes and
// picks up a new system prompt or log level without restarting.
func (b *ChatBot) ProcessMessage(ctx context.Context, text string, onDelta chat.DeltaFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.session.Connected() {
		return fmt.Errorf("process message: %w", voxerr.ErrSessionNotInitialized)
	}

	b.refreshConfig(ctx)

	data := b.serverCfg.Data()
	params := chat.Params{
		Model:            data.Completion.Model,
		Temperature:      data.Completion.Temperature,
		TopP:             data.Completion.TopP,
		MaxTokens:        data.Completion.MaxTokens,
		PresencePenalty:  data.Completion.PresencePenalty,
		FrequencyPenalty: data.Completion.FrequencyPenalty,
		MaxHistory:       data.Chatbot.MaxConversationHistory,
	}

	err := b.manager.ProcessTurn(ctx, text, params, onDelta)
	if b.metrics != nil {
		b.metrics.RecordTurn()
	}
	return err
}

// refreshConfig polls the config version and applies changes. A failed poll
// keeps the previous configuration; the turn still runs.
func (b *ChatBot) refreshConfig(ctx context.Context) {
	changed, err := b.serverCfg.Refresh(ctx, b.session)
	if err != nil {
		b.logger.Warn("config refresh failed, keeping previous configuration", "error", err)
		return
	}
	if !changed {
		return
	}

	prompt := b.serverCfg.Data().Chatbot.SystemPrompt
	if current, ok := b.manager.Store().SystemMessage(); prompt != "" && (!ok || current != prompt) {
		b.manager.Store().SetSystemMessage(prompt)
		b.logger.Info("system prompt updated from server config")
	}
	b.applyLogLevel()
}

func (b *ChatBot) applyLogLevel() {
	if b.levelVar == nil {
		return
	}
	if level, ok := b.serverCfg.LogLevel(); ok {
		b.levelVar.Set(level)
	}
}

// History returns a copy of the conversation transcript.
func (b *ChatBot) History() []llm.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.manager.Store().History()
}

// ClearHistory resets the transcript, keeping the system prompt.
func (b *ChatBot) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manager.Store().Clear()
}

// Config returns the current server-provided configuration document. The
// lock orders the read against refreshConfig rewriting the document
// mid-turn.
func (b *ChatBot) Config() serverconfig.Data {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serverCfg.Data()
}

// Capabilities returns the probed server tool capability map.
func (b *ChatBot) Capabilities() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serverCfg.Capabilities()
}

// Cleanup clears the transcript when the server configuration asks for it and
// closes the MCP session.
func (b *ChatBot) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.serverCfg.Data().Chatbot.ClearHistoryOnExit {
		b.manager.Store().Clear()
		b.logger.Info("conversation history cleared on exit")
	}
	if err := b.session.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
