// Package serverconfig loads chatbot configuration from any MCP server that
// implements the configuration tool interface (get_config and
// get_config_version), with capability probing for optional tools.
package serverconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/voxerr"
)

// ToolCaller is the narrow session surface this package needs.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error)
	ToolsForCompletion(ctx context.Context) ([]llm.Tool, error)
}

// RequiredTools must be provided by any compatible MCP server.
var RequiredTools = map[string]string{
	"get_config":         "Get configuration from server",
	"get_config_version": "Get configuration version for change detection",
}

// OptionalTools enhance functionality when available.
var OptionalTools = map[string]string{
	"update_config":    "Update configuration on server",
	"list_config_keys": "List available configuration keys",
	"save_config":      "Save configuration to server file",
	"load_config":      "Load configuration from server file",
}

// ChatbotSettings is the chatbot section of the server-provided config.
type ChatbotSettings struct {
	SystemPrompt           string `json:"system_prompt"`
	MaxConversationHistory int    `json:"max_conversation_history"`
	ClearHistoryOnExit     bool   `json:"clear_history_on_exit"`
}

// CompletionSettings is the completion API section.
type CompletionSettings struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	MaxTokens        int     `json:"max_tokens"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
}

// LoggingSettings is the logging section.
type LoggingSettings struct {
	Enabled bool   `json:"enabled"`
	Level   string `json:"level"`
}

// Data is the full server-provided configuration document.
type Data struct {
	Chatbot    ChatbotSettings    `json:"chatbot"`
	Completion CompletionSettings `json:"openai"`
	Logging    LoggingSettings    `json:"logging"`
}

// ServerConfig holds configuration fetched from the MCP server plus the
// probed capability set.
type ServerConfig struct {
	data         Data
	version      string
	capabilities map[string]bool
	logger       *slog.Logger
}

// New creates an empty ServerConfig.
func New(logger *slog.Logger) *ServerConfig {
	return &ServerConfig{
		capabilities: make(map[string]bool),
		logger:       logger,
	}
}

// Load probes the server's tool catalog, verifies the required configuration
// interface, then fetches and parses the full configuration.
func (c *ServerConfig) Load(ctx context.Context, tc ToolCaller) error {
	if err := c.probeCapabilities(ctx, tc); err != nil {
		return err
	}

	var missing []string
	for name := range RequiredTools {
		if !c.capabilities[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("server missing required tools %v: %w", missing, voxerr.ErrServerIncompatible)
	}

	if err := c.fetch(ctx, tc); err != nil {
		return err
	}

	var optional []string
	for name := range OptionalTools {
		if c.capabilities[name] {
			optional = append(optional, name)
		}
	}
	c.logger.Info("configuration loaded from server", "optional_tools", optional)
	return nil
}

// Refresh performs a lightweight version check and reloads the full
// configuration only when the version changed. Returns whether a reload
// happened. Servers without config versioning are skipped silently.
func (c *ServerConfig) Refresh(ctx context.Context, tc ToolCaller) (bool, error) {
	if !c.capabilities["get_config_version"] {
		c.logger.Debug("server does not support config versioning, skipping version check")
		return false, nil
	}

	result, err := tc.CallTool(ctx, "get_config_version", nil)
	if err != nil {
		return false, fmt.Errorf("get config version: %w", err)
	}
	version := strings.TrimSpace(session.ExtractContent(result))

	if version == c.version {
		return false, nil
	}

	if err := c.fetch(ctx, tc); err != nil {
		return false, err
	}
	c.version = version
	c.logger.Info("configuration updated from server", "version", version)
	return true, nil
}

func (c *ServerConfig) probeCapabilities(ctx context.Context, tc ToolCaller) error {
	tools, err := tc.ToolsForCompletion(ctx)
	if err != nil {
		return fmt.Errorf("check server capabilities: %w", err)
	}

	available := make(map[string]bool, len(tools))
	for _, t := range tools {
		available[t.Function.Name] = true
	}
	for name := range RequiredTools {
		c.capabilities[name] = available[name]
	}
	for name := range OptionalTools {
		c.capabilities[name] = available[name]
	}
	return nil
}

func (c *ServerConfig) fetch(ctx context.Context, tc ToolCaller) error {
	result, err := tc.CallTool(ctx, "get_config", nil)
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}

	var data Data
	if err := json.Unmarshal([]byte(session.ExtractContent(result)), &data); err != nil {
		return &voxerr.ConfigError{Field: "get_config", Message: "server returned malformed configuration", Err: err}
	}
	c.data = data
	return nil
}

// HasCapability reports whether the server provides the named tool.
func (c *ServerConfig) HasCapability(name string) bool {
	return c.capabilities[name]
}

// Capabilities returns a copy of the probed capability map.
func (c *ServerConfig) Capabilities() map[string]bool {
	out := make(map[string]bool, len(c.capabilities))
	for k, v := range c.capabilities {
		out[k] = v
	}
	return out
}

// Data returns the current configuration document.
func (c *ServerConfig) Data() Data {
	return c.data
}

// Version returns the last seen configuration version token.
func (c *ServerConfig) Version() string {
	return c.version
}

// LogLevel maps the server's logging section to a slog level. Returns false
// when server-driven logging is disabled.
func (c *ServerConfig) LogLevel() (slog.Level, bool) {
	if !c.data.Logging.Enabled {
		return slog.LevelInfo, false
	}
	switch strings.ToUpper(c.data.Logging.Level) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, true
	}
}
