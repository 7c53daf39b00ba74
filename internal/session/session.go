// Package session wraps the MCP client session: connection lifecycle, tool
// discovery in the completion API's schema, and the never-fail tool invoker.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/voxerr"
)

const clientName = "voxbridge"

// Session manages the MCP server connection and tool operations for any
// compatible MCP server. The underlying protocol session is shared across all
// turns of one conversation but never mutated by the conversation core.
type Session struct {
	client     *mcp.Client
	session    *mcp.ClientSession
	logger     *slog.Logger
	serverInfo []string
}

// New creates an unconnected session.
func New(version string, logger *slog.Logger) *Session {
	return &Session{
		client: mcp.NewClient(&mcp.Implementation{
			Name:    clientName,
			Version: version,
		}, nil),
		logger: logger,
	}
}

// Connect establishes the MCP session over the given transport.
func (s *Session) Connect(ctx context.Context, transport mcp.Transport) error {
	sess, err := s.client.Connect(ctx, transport, nil)
	if err != nil {
		return &voxerr.ConnectionError{
			Command: s.serverInfo,
			Message: "could not connect to MCP server",
			Err:     err,
		}
	}
	s.session = sess

	tools, err := sess.ListTools(ctx, nil)
	if err != nil {
		return &voxerr.ConnectionError{
			Command: s.serverInfo,
			Message: "could not list tools after connect",
			Err:     err,
		}
	}
	s.logger.Info("connected to MCP server", "tools", len(tools.Tools))
	return nil
}

// ConnectCommand spawns the given server command and connects over its stdio.
func (s *Session) ConnectCommand(ctx context.Context, command []string, env []string) error {
	if len(command) == 0 {
		return &voxerr.ConfigError{Field: "server.command", Message: "empty server command"}
	}
	s.serverInfo = command
	s.logger.Info("connecting to MCP server", "command", strings.Join(command, " "))

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	return s.Connect(ctx, &mcp.CommandTransport{Command: cmd})
}

// Connected reports whether the session is established.
func (s *Session) Connected() bool {
	return s.session != nil
}

// ServerInfo returns the command used to launch the connected server.
func (s *Session) ServerInfo() []string {
	return append([]string(nil), s.serverInfo...)
}

// ToolsForCompletion returns the server's advertised tools in the completion
// API's function-calling schema. The catalog is fetched fresh on every call;
// callers re-fetch each turn so tools added mid-session are picked up.
func (s *Session) ToolsForCompletion(ctx context.Context) ([]llm.Tool, error) {
	if s.session == nil {
		return nil, fmt.Errorf("call Connect first: %w", voxerr.ErrSessionNotInitialized)
	}

	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]llm.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return tools, nil
}

// CallTool calls a tool on the MCP server with already-parsed arguments.
func (s *Session) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	if s.session == nil {
		return nil, fmt.Errorf("call Connect first: %w", voxerr.ErrSessionNotInitialized)
	}
	return s.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
}

// Invoke executes a named tool with a raw JSON argument string as assembled
// by the streaming driver. It never returns an error: parse and execution
// failures are synthesized into a human-readable error string returned as a
// normal tool result, so a failed call becomes a tool message the model can
// react to instead of aborting the turn.
func (s *Session) Invoke(ctx context.Context, name, arguments string) string {
	var parsed map[string]any
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
			s.logger.Error("tool arguments are not valid JSON", "tool", name, "error", err)
			return fmt.Sprintf("Error executing tool %s: %v", name, err)
		}
	}

	result, err := s.CallTool(ctx, name, parsed)
	if err != nil {
		s.logger.Error("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error executing tool %s: %v", name, err)
	}
	return ExtractContent(result)
}

// Close tears down the session. Safe to call when never connected.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	if len(s.serverInfo) > 0 {
		s.logger.Info("closing connection", "command", strings.Join(s.serverInfo, " "))
	}
	err := s.session.Close()
	s.session = nil
	return err
}

// ExtractContent flattens a tool result's content list into text: text parts
// are concatenated, non-text parts become a bracketed placeholder naming the
// content type, and anything else falls back to its string form. An empty
// content list yields an empty string.
func ExtractContent(result *mcp.CallToolResult) string {
	var b strings.Builder
	for _, item := range result.Content {
		switch c := item.(type) {
		case *mcp.TextContent:
			b.WriteString(c.Text)
		case *mcp.ImageContent:
			b.WriteString("[image content]")
		case *mcp.AudioContent:
			b.WriteString("[audio content]")
		default:
			fmt.Fprintf(&b, "%v", c)
		}
	}
	return b.String()
}
