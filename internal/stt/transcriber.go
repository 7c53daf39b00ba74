// Package stt wraps Deepgram's live transcription WebSocket: connection
// lifecycle, utterance assembly and keepalive while the assistant is
// responding.
package stt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxbridge/voxbridge/internal/voxerr"
)

const defaultBaseURL = "wss://api.deepgram.com/v1/listen"

// Options configure the live transcription stream.
type Options struct {
	// BaseURL overrides the live endpoint. Used by tests.
	BaseURL string

	Model          string
	Language       string
	SampleRate     int
	UtteranceEndMS int

	// KeepAliveInterval is the ping cadence while paused.
	KeepAliveInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.Model == "" {
		o.Model = "nova-2"
	}
	if o.Language == "" {
		o.Language = "en-US"
	}
	if o.SampleRate == 0 {
		o.SampleRate = 16000
	}
	if o.UtteranceEndMS == 0 {
		o.UtteranceEndMS = 1000
	}
	if o.KeepAliveInterval == 0 {
		o.KeepAliveInterval = 3 * time.Second
	}
}

// UtteranceFunc receives each complete utterance.
type UtteranceFunc func(utterance string)

// Transcriber is one live transcription session. Finalized transcript
// segments accumulate until the service signals utterance end, then the
// joined utterance is delivered to the callback. While paused, incoming
// transcripts are dropped and keepalive frames hold the socket open.
type Transcriber struct {
	apiKey      string
	opts        Options
	onUtterance UtteranceFunc
	logger      *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	paused  bool
	buffer  utteranceBuffer

	writeMu sync.Mutex
	done    chan struct{}
}

// New creates a transcriber. The callback is invoked from the read loop
// goroutine, one utterance at a time.
func New(apiKey string, opts Options, onUtterance UtteranceFunc, logger *slog.Logger) (*Transcriber, error) {
	if apiKey == "" {
		return nil, &voxerr.ConfigError{Field: "deepgram_api_key", Message: "transcription API key is not set"}
	}
	opts.applyDefaults()
	return &Transcriber{
		apiKey:      apiKey,
		opts:        opts,
		onUtterance: onUtterance,
		logger:      logger,
	}, nil
}

// Start dials the live endpoint and begins consuming transcription events.
func (t *Transcriber) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.logger.Warn("transcriber already running")
		return nil
	}

	header := http.Header{"Authorization": {"Token " + t.apiKey}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.streamURL(), header)
	if err != nil {
		if resp != nil {
			return &voxerr.ConnectionError{Command: []string{"deepgram"}, Message: fmt.Sprintf("live connection refused (status %d)", resp.StatusCode), Err: err}
		}
		return &voxerr.ConnectionError{Command: []string{"deepgram"}, Message: "live connection failed", Err: err}
	}

	t.conn = conn
	t.running = true
	t.done = make(chan struct{})
	go t.readLoop()
	go t.keepaliveLoop()

	t.logger.Info("live transcription started", "model", t.opts.Model, "language", t.opts.Language)
	return nil
}

func (t *Transcriber) streamURL() string {
	q := url.Values{}
	q.Set("model", t.opts.Model)
	q.Set("language", t.opts.Language)
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(t.opts.SampleRate))
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", strconv.Itoa(t.opts.UtteranceEndMS))
	q.Set("vad_events", "true")
	return t.opts.BaseURL + "?" + q.Encode()
}

// SendAudio forwards one chunk of linear16 audio.
func (t *Transcriber) SendAudio(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("send audio: %w", voxerr.ErrSessionNotInitialized)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Pause suspends transcript processing while the assistant streams its
// response. The keepalive loop keeps the socket alive meanwhile.
func (t *Transcriber) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.paused = true
	t.logger.Debug("transcription paused for response streaming")
}

// Resume re-enables transcript processing.
func (t *Transcriber) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.paused = false
	t.logger.Debug("transcription resumed")
}

// Stop closes the stream. Safe to call on a stopped transcriber.
func (t *Transcriber) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	conn := t.conn
	t.conn = nil
	close(t.done)
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	t.writeMu.Unlock()

	err := conn.Close()
	t.logger.Info("live transcription stopped")
	return err
}

func (t *Transcriber) readLoop() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			running := t.running
			t.mu.Unlock()
			if running {
				t.logger.Warn("transcription read failed", "error", err)
			}
			return
		}
		t.handleFrame(data)
	}
}

func (t *Transcriber) handleFrame(data []byte) {
	event, err := ParseEvent(data)
	if err != nil {
		t.logger.Warn("unparseable transcription frame", "error", err)
		return
	}

	t.mu.Lock()
	paused := t.paused
	t.mu.Unlock()

	switch event.Type {
	case EventResults:
		if paused {
			return
		}
		t.mu.Lock()
		t.buffer.add(event.Transcript(), event.IsFinal)
		t.mu.Unlock()
	case EventUtteranceEnd:
		if paused {
			return
		}
		t.mu.Lock()
		utterance, ok := t.buffer.complete()
		t.mu.Unlock()
		if ok {
			t.logger.Info("utterance complete", "length", len(utterance))
			t.onUtterance(utterance)
		}
	case EventSpeechStart, EventMetadata:
		t.logger.Debug("transcription event", "type", event.Type)
	}
}

// keepaliveLoop sends periodic KeepAlive frames while paused so the service
// does not drop the idle socket.
func (t *Transcriber) keepaliveLoop() {
	ticker := time.NewTicker(t.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			paused := t.paused && t.running
			conn := t.conn
			t.mu.Unlock()
			if !paused || conn == nil {
				continue
			}
			t.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("keepalive send failed", "error", err)
				return
			}
		case <-t.done:
			return
		}
	}
}
