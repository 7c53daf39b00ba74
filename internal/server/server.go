// Package server exposes the chatbot over a WebSocket JSON protocol plus
// health and metrics HTTP endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/voxbridge/voxbridge/internal/chat"
	"github.com/voxbridge/voxbridge/internal/chatbot"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/internal/serverconfig"
	"github.com/voxbridge/voxbridge/internal/stt"
)

// Bot is the per-connection conversation surface the server drives. Satisfied
// by *chatbot.ChatBot.
type Bot interface {
	ProcessMessage(ctx context.Context, text string, onDelta chat.DeltaFunc) error
	History() []llm.Message
	ClearHistory()
	Config() serverconfig.Data
	Cleanup() error
}

// BotFactory creates a connected Bot for a new client. Each WebSocket client
// gets its own conversation.
type BotFactory func(ctx context.Context) (Bot, error)

// TranscriberFactory creates and starts a live transcriber that delivers
// complete utterances to onUtterance. One transcriber serves one client.
type TranscriberFactory func(ctx context.Context, onUtterance stt.UtteranceFunc) (*stt.Transcriber, error)

// Option configures a Server.
type Option func(*Server)

// WithTranscriberFactory enables voice input: binary WebSocket frames are
// streamed to a per-client transcriber and each completed utterance is
// processed as a user turn.
func WithTranscriberFactory(f TranscriberFactory) Option {
	return func(s *Server) {
		s.newTranscriber = f
	}
}

// Server is the WebSocket/HTTP frontend.
type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	collector *metrics.Collector
	newBot    BotFactory
	manager   *ConnectionManager
	upgrader  websocket.Upgrader

	newTranscriber TranscriberFactory

	httpServer *http.Server
}

// New creates a server. newBot is invoked once per accepted WebSocket client.
func New(cfg config.Config, newBot BotFactory, collector *metrics.Collector, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		newBot:    newBot,
		manager:   NewConnectionManager(cfg.MaxConnections, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     s.Handler(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler returns the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// ListenAndServe starts serving and blocks until the listener closes.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server listening", "addr", s.cfg.Addr())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight work and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server", "active_connections", s.manager.Count())
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.collector.Snapshot()); err != nil {
		s.logger.Warn("metrics encode failed", "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn, ok := s.manager.Register(ws)
	if !ok {
		s.logger.Warn("connection rejected, registry full", "max", s.cfg.MaxConnections)
		_ = ws.WriteJSON(ServerEvent{Type: TypeError, Error: "server at connection capacity"})
		_ = ws.Close()
		return
	}
	s.collector.ConnectionOpened()

	defer func() {
		s.manager.Unregister(conn.ID)
		s.collector.ConnectionClosed()
		_ = ws.Close()
	}()

	bot, err := s.newBot(r.Context())
	if err != nil {
		s.logger.Error("chatbot init failed", "client_id", conn.ID, "error", err)
		_ = conn.Send(ServerEvent{Type: TypeError, Error: "backend unavailable"})
		return
	}
	defer func() {
		if err := bot.Cleanup(); err != nil {
			s.logger.Warn("chatbot cleanup failed", "client_id", conn.ID, "error", err)
		}
	}()

	s.serveConnection(r.Context(), conn, bot)
}

// clientState bundles the per-client collaborators. The turn mutex keeps
// utterance-triggered turns from overlapping with text-message turns: the
// transcriber delivers utterances on its own read goroutine.
type clientState struct {
	conn *Connection
	bot  Bot

	turnMu sync.Mutex

	mu          sync.Mutex
	transcriber *stt.Transcriber
	audioStart  time.Time
}

func (c *clientState) setTranscriber(tr *stt.Transcriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcriber = tr
}

func (c *clientState) getTranscriber() *stt.Transcriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriber
}

// markAudio notes the arrival of the first audio frame of an utterance.
func (c *clientState) markAudio() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioStart.IsZero() {
		c.audioStart = time.Now()
	}
}

// takeAudioDuration returns the elapsed time since the utterance's first
// audio frame and resets the mark.
func (c *clientState) takeAudioDuration() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioStart.IsZero() {
		return 0, false
	}
	d := time.Since(c.audioStart)
	c.audioStart = time.Time{}
	return d, true
}

// serveConnection runs the per-client read loop. Text frames carry protocol
// messages and are handled in arrival order; binary frames carry raw audio
// for the transcriber.
func (s *Server) serveConnection(ctx context.Context, conn *Connection, bot Bot) {
	stopKeepalive := s.startKeepalive(conn)
	defer stopKeepalive()

	client := &clientState{conn: conn, bot: bot}
	defer func() {
		if tr := client.getTranscriber(); tr != nil {
			if err := tr.Stop(); err != nil {
				s.logger.Warn("transcriber stop failed", "client_id", conn.ID, "error", err)
			}
		}
	}()

	for {
		frameType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("client read failed", "client_id", conn.ID, "error", err)
			}
			return
		}

		switch frameType {
		case websocket.BinaryMessage:
			if err := s.handleAudio(ctx, client, data); err != nil {
				s.logger.Warn("client send failed", "client_id", conn.ID, "error", err)
				return
			}
		case websocket.TextMessage:
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				if err := conn.Send(ServerEvent{Type: TypeError, Error: "malformed message"}); err != nil {
					return
				}
				continue
			}
			if err := s.dispatch(ctx, client, msg); err != nil {
				s.logger.Warn("client send failed", "client_id", conn.ID, "error", err)
				return
			}
		}
	}
}

// handleAudio streams one audio frame to the client's transcriber, creating
// it on first use.
func (s *Server) handleAudio(ctx context.Context, c *clientState, frame []byte) error {
	if s.newTranscriber == nil {
		return c.conn.Send(ServerEvent{Type: TypeError, Error: "audio input not enabled"})
	}
	tr := c.getTranscriber()
	if tr == nil {
		created, err := s.newTranscriber(ctx, func(utterance string) {
			s.handleUtterance(ctx, c, utterance)
		})
		if err != nil {
			s.logger.Error("transcriber init failed", "client_id", c.conn.ID, "error", err)
			return c.conn.Send(ServerEvent{Type: TypeError, Error: "transcription unavailable"})
		}
		c.setTranscriber(created)
		tr = created
	}
	c.markAudio()
	if err := tr.SendAudio(frame); err != nil {
		s.logger.Warn("audio forward failed", "client_id", c.conn.ID, "error", err)
	}
	return nil
}

// handleUtterance processes one transcribed utterance as a user turn. The
// transcriber is paused for the duration so the client's own playback of the
// response is not transcribed back.
func (s *Server) handleUtterance(ctx context.Context, c *clientState, utterance string) {
	if d, ok := c.takeAudioDuration(); ok {
		s.collector.RecordTiming(metrics.OpTranscription, d)
	}

	// The transcriber may not be published yet when the very first utterance
	// races connection setup; the turn still runs.
	if tr := c.getTranscriber(); tr != nil {
		tr.Pause()
		defer tr.Resume()
	}

	if err := c.conn.Send(ServerEvent{Type: TypeTranscript, Content: utterance}); err != nil {
		s.logger.Warn("client send failed", "client_id", c.conn.ID, "error", err)
		return
	}
	if err := s.runTurn(ctx, c, utterance); err != nil {
		s.logger.Warn("client send failed", "client_id", c.conn.ID, "error", err)
	}
}

// startKeepalive pings the client periodically and enforces the pong
// deadline. Returns a stop function.
func (s *Server) startKeepalive(conn *Connection) func() {
	readWait := s.cfg.PingInterval + s.cfg.PingTimeout
	_ = conn.conn.SetReadDeadline(time.Now().Add(readWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.writeControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.PingTimeout)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (s *Server) dispatch(ctx context.Context, c *clientState, msg ClientMessage) error {
	switch msg.Type {
	case TypeTextMessage:
		return s.runTurn(ctx, c, msg.Content)
	case TypeGetHistory:
		return c.conn.Send(ServerEvent{Type: TypeHistory, ID: msg.ID, History: c.bot.History()})
	case TypeClearHistory:
		c.bot.ClearHistory()
		return c.conn.Send(ServerEvent{Type: TypeHistoryCleared, ID: msg.ID})
	case TypeGetConfig:
		cfg := c.bot.Config()
		return c.conn.Send(ServerEvent{Type: TypeConfig, ID: msg.ID, Config: &cfg})
	case TypePing:
		return c.conn.Send(ServerEvent{Type: TypePong, ID: msg.ID})
	default:
		return c.conn.Send(ServerEvent{Type: TypeError, ID: msg.ID, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// runTurn runs one conversation turn, streaming assistant text back as it
// arrives. Turns on the same client are serialized.
func (s *Server) runTurn(ctx context.Context, c *clientState, text string) error {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	messageID := uuid.NewString()

	if err := c.conn.Send(ServerEvent{Type: TypeMessageStart, ID: messageID}); err != nil {
		return err
	}

	err := c.bot.ProcessMessage(ctx, text, func(chunk string) error {
		return c.conn.Send(ServerEvent{Type: TypeTextChunk, ID: messageID, Content: chunk})
	})
	if err != nil {
		s.logger.Error("turn failed", "client_id", c.conn.ID, "message_id", messageID, "error", err)
		return c.conn.Send(ServerEvent{Type: TypeError, ID: messageID, Error: "message processing failed"})
	}

	return c.conn.Send(ServerEvent{Type: TypeMessageComplete, ID: messageID})
}

// NewChatBotFactory builds the production BotFactory: each client gets its
// own MCP session and transcript, launched from the shared connection config.
func NewChatBotFactory(version string, cc *config.ConnectionConfig, completer chat.Completer, logger *slog.Logger, opts ...chatbot.Option) BotFactory {
	return func(ctx context.Context) (Bot, error) {
		bot := chatbot.New(version, completer, logger, opts...)
		if err := bot.ConnectCommand(ctx, cc.Server.Command, cc.Server.Env); err != nil {
			return nil, err
		}
		return bot, nil
	}
}
