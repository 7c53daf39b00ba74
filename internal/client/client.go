// Package client provides a WebSocket client for the voxbridge server.
package client

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/server"
	"github.com/voxbridge/voxbridge/internal/serverconfig"
)

// Client is a WebSocket client for the voxbridge server. It is not safe for
// concurrent use; the chat frontends drive it from a single goroutine.
type Client struct {
	endpoint string
	conn     *websocket.Conn
}

// New creates a client. If endpoint is empty, uses the VOXBRIDGE_SERVER_URL
// env var or defaults to localhost:8000.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("VOXBRIDGE_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "ws://localhost:8000/ws"
	}
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	endpoint = strings.Replace(endpoint, "https://", "wss://", 1)

	return &Client{endpoint: endpoint}
}

// Connect dials the server.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket connect %s: %w", c.endpoint, err)
	}
	c.conn = conn
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Connected reports whether the client holds a live connection.
func (c *Client) Connected() bool {
	return c.conn != nil
}

func (c *Client) send(msg server.ClientMessage) error {
	if c.conn == nil {
		return fmt.Errorf("client not connected")
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) read(ctx context.Context) (server.ServerEvent, error) {
	var event server.ServerEvent
	if c.conn == nil {
		return event, fmt.Errorf("client not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	if err := c.conn.ReadJSON(&event); err != nil {
		return event, fmt.Errorf("read server event: %w", err)
	}
	return event, nil
}

// SendMessage submits one user message and streams the assistant's reply.
// onChunk is invoked for each text fragment in arrival order; returning an
// error aborts the read loop.
func (c *Client) SendMessage(ctx context.Context, text string, onChunk func(chunk string) error) error {
	if err := c.send(server.ClientMessage{Type: server.TypeTextMessage, ID: uuid.NewString(), Content: text}); err != nil {
		return err
	}

	for {
		event, err := c.read(ctx)
		if err != nil {
			return err
		}
		switch event.Type {
		case server.TypeMessageStart:
			// reply stream begins
		case server.TypeTextChunk:
			if err := onChunk(event.Content); err != nil {
				return err
			}
		case server.TypeMessageComplete:
			return nil
		case server.TypeError:
			return fmt.Errorf("server error: %s", event.Error)
		default:
			// Interleaved non-message events are not expected mid-stream;
			// skip rather than fail.
		}
	}
}

// GetHistory fetches the conversation transcript.
func (c *Client) GetHistory(ctx context.Context) ([]llm.Message, error) {
	if err := c.send(server.ClientMessage{Type: server.TypeGetHistory, ID: uuid.NewString()}); err != nil {
		return nil, err
	}

	event, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	if event.Type == server.TypeError {
		return nil, fmt.Errorf("server error: %s", event.Error)
	}
	if event.Type != server.TypeHistory {
		return nil, fmt.Errorf("expected history event, got %s", event.Type)
	}
	return event.History, nil
}

// ClearHistory resets the server-side transcript.
func (c *Client) ClearHistory(ctx context.Context) error {
	if err := c.send(server.ClientMessage{Type: server.TypeClearHistory, ID: uuid.NewString()}); err != nil {
		return err
	}

	event, err := c.read(ctx)
	if err != nil {
		return err
	}
	if event.Type == server.TypeError {
		return fmt.Errorf("server error: %s", event.Error)
	}
	if event.Type != server.TypeHistoryCleared {
		return fmt.Errorf("expected history_cleared event, got %s", event.Type)
	}
	return nil
}

// GetConfig fetches the active backend configuration.
func (c *Client) GetConfig(ctx context.Context) (*serverconfig.Data, error) {
	if err := c.send(server.ClientMessage{Type: server.TypeGetConfig, ID: uuid.NewString()}); err != nil {
		return nil, err
	}

	event, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	if event.Type == server.TypeError {
		return nil, fmt.Errorf("server error: %s", event.Error)
	}
	if event.Type != server.TypeConfig || event.Config == nil {
		return nil, fmt.Errorf("expected config event, got %s", event.Type)
	}
	return event.Config, nil
}

// Ping round-trips a protocol-level ping.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.send(server.ClientMessage{Type: server.TypePing, ID: uuid.NewString()}); err != nil {
		return err
	}

	event, err := c.read(ctx)
	if err != nil {
		return err
	}
	if event.Type != server.TypePong {
		return fmt.Errorf("expected pong event, got %s", event.Type)
	}
	return nil
}
