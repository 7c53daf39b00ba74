package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbridge/voxbridge/internal/chat"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/internal/server"
	"github.com/voxbridge/voxbridge/internal/serverconfig"
	"github.com/voxbridge/voxbridge/internal/stt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBot streams scripted chunks per turn and records received messages.
type fakeBot struct {
	chunks     []string
	processErr error
	received   []string
	cleaned    bool
	history    []llm.Message
}

func (b *fakeBot) ProcessMessage(_ context.Context, text string, onDelta chat.DeltaFunc) error {
	b.received = append(b.received, text)
	if b.processErr != nil {
		return b.processErr
	}
	for _, c := range b.chunks {
		if err := onDelta(c); err != nil {
			return err
		}
	}
	b.history = append(b.history,
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: strings.Join(b.chunks, "")},
	)
	return nil
}

func (b *fakeBot) History() []llm.Message { return b.history }
func (b *fakeBot) ClearHistory()          { b.history = nil }
func (b *fakeBot) Config() serverconfig.Data {
	return serverconfig.Data{
		Completion: serverconfig.CompletionSettings{Model: "gpt-4o-mini"},
	}
}
func (b *fakeBot) Cleanup() error {
	b.cleaned = true
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Host:           "127.0.0.1",
		Port:           0,
		MaxConnections: 4,
		PingInterval:   30 * time.Second,
		PingTimeout:    10 * time.Second,
	}
}

// startServer serves the handler on an httptest listener and returns a
// connected websocket client.
func startServer(t *testing.T, cfg config.Config, bot *fakeBot, opts ...server.Option) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	factory := func(context.Context) (server.Bot, error) { return bot, nil }
	srv := server.New(cfg, factory, metrics.NewCollector(), testLogger(), opts...)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ws := dial(t, ts)
	return ws, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) server.ServerEvent {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event server.ServerEvent
	require.NoError(t, ws.ReadJSON(&event))
	return event
}

func TestPingPong(t *testing.T) {
	ws, _ := startServer(t, testConfig(), &fakeBot{})

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypePing, ID: "p1"}))

	event := readEvent(t, ws)
	assert.Equal(t, server.TypePong, event.Type)
	assert.Equal(t, "p1", event.ID)
}

func TestTextMessageStreamsChunks(t *testing.T) {
	bot := &fakeBot{chunks: []string{"Hello", " there", "!"}}
	ws, _ := startServer(t, testConfig(), bot)

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypeTextMessage, Content: "hi"}))

	start := readEvent(t, ws)
	require.Equal(t, server.TypeMessageStart, start.Type)
	require.NotEmpty(t, start.ID)

	var streamed strings.Builder
	for {
		event := readEvent(t, ws)
		if event.Type == server.TypeMessageComplete {
			assert.Equal(t, start.ID, event.ID)
			break
		}
		require.Equal(t, server.TypeTextChunk, event.Type)
		assert.Equal(t, start.ID, event.ID)
		streamed.WriteString(event.Content)
	}

	assert.Equal(t, "Hello there!", streamed.String())
	assert.Equal(t, []string{"hi"}, bot.received)
}

func TestTextMessageFailure(t *testing.T) {
	bot := &fakeBot{processErr: errors.New("backend down")}
	ws, _ := startServer(t, testConfig(), bot)

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypeTextMessage, Content: "hi"}))

	start := readEvent(t, ws)
	require.Equal(t, server.TypeMessageStart, start.Type)

	event := readEvent(t, ws)
	assert.Equal(t, server.TypeError, event.Type)
	assert.Equal(t, start.ID, event.ID)
	assert.NotEmpty(t, event.Error)
}

func TestHistoryOps(t *testing.T) {
	bot := &fakeBot{chunks: []string{"hi!"}}
	ws, _ := startServer(t, testConfig(), bot)

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypeTextMessage, Content: "hello"}))
	for {
		if readEvent(t, ws).Type == server.TypeMessageComplete {
			break
		}
	}

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypeGetHistory, ID: "h1"}))
	event := readEvent(t, ws)
	require.Equal(t, server.TypeHistory, event.Type)
	require.Len(t, event.History, 2)
	assert.Equal(t, llm.RoleUser, event.History[0].Role)

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypeClearHistory, ID: "h2"}))
	event = readEvent(t, ws)
	assert.Equal(t, server.TypeHistoryCleared, event.Type)

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypeGetHistory, ID: "h3"}))
	event = readEvent(t, ws)
	assert.Empty(t, event.History)
}

func TestGetConfig(t *testing.T) {
	ws, _ := startServer(t, testConfig(), &fakeBot{})

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypeGetConfig, ID: "c1"}))

	event := readEvent(t, ws)
	require.Equal(t, server.TypeConfig, event.Type)
	require.NotNil(t, event.Config)
	assert.Equal(t, "gpt-4o-mini", event.Config.Completion.Model)
}

func TestUnknownMessageType(t *testing.T) {
	ws, _ := startServer(t, testConfig(), &fakeBot{})

	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: "bogus"}))

	event := readEvent(t, ws)
	assert.Equal(t, server.TypeError, event.Type)
	assert.Contains(t, event.Error, "bogus")
}

func TestConnectionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	ws, ts := startServer(t, cfg, &fakeBot{})

	// First connection must be live before the second dial.
	require.NoError(t, ws.WriteJSON(server.ClientMessage{Type: server.TypePing}))
	require.Equal(t, server.TypePong, readEvent(t, ws).Type)

	second := dial(t, ts)
	event := readEvent(t, second)
	assert.Equal(t, server.TypeError, event.Type)
	assert.Contains(t, event.Error, "capacity")
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := startServer(t, testConfig(), &fakeBot{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := startServer(t, testConfig(), &fakeBot{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.ActiveConnections)
}

func TestAudioWithoutTranscriber(t *testing.T) {
	ws, _ := startServer(t, testConfig(), &fakeBot{})

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2, 3}))

	event := readEvent(t, ws)
	assert.Equal(t, server.TypeError, event.Type)
	assert.Contains(t, event.Error, "audio input not enabled")
}

func TestMalformedMessage(t *testing.T) {
	ws, _ := startServer(t, testConfig(), &fakeBot{})

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	event := readEvent(t, ws)
	assert.Equal(t, server.TypeError, event.Type)
	assert.Contains(t, event.Error, "malformed")
}

// fakeTranscriptionAPI answers the first audio frame with a final result and
// an utterance end, then holds the socket open.
func fakeTranscriptionAPI(t *testing.T, transcript string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()

		sent := false
		for {
			frameType, _, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if frameType != websocket.BinaryMessage || sent {
				continue
			}
			sent = true
			result, err := json.Marshal(map[string]any{
				"type":     "Results",
				"is_final": true,
				"channel": map[string]any{
					"alternatives": []map[string]any{{"transcript": transcript}},
				},
			})
			require.NoError(t, err)
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, result))
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"UtteranceEnd"}`)))
		}
	}))
}

func TestVoiceTurn(t *testing.T) {
	api := fakeTranscriptionAPI(t, "what time is it")
	defer api.Close()

	bot := &fakeBot{chunks: []string{"It is ", "noon."}}
	ws, _ := startServer(t, testConfig(), bot, server.WithTranscriberFactory(
		func(ctx context.Context, onUtterance stt.UtteranceFunc) (*stt.Transcriber, error) {
			tr, err := stt.New("test-key", stt.Options{
				BaseURL: "ws" + strings.TrimPrefix(api.URL, "http"),
			}, onUtterance, testLogger())
			if err != nil {
				return nil, err
			}
			if err := tr.Start(ctx); err != nil {
				return nil, err
			}
			return tr, nil
		},
	))

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, make([]byte, 320)))

	event := readEvent(t, ws)
	require.Equal(t, server.TypeTranscript, event.Type)
	assert.Equal(t, "what time is it", event.Content)

	start := readEvent(t, ws)
	require.Equal(t, server.TypeMessageStart, start.Type)

	var streamed strings.Builder
	for {
		event := readEvent(t, ws)
		if event.Type == server.TypeMessageComplete {
			break
		}
		require.Equal(t, server.TypeTextChunk, event.Type)
		streamed.WriteString(event.Content)
	}

	assert.Equal(t, "It is noon.", streamed.String())
	assert.Equal(t, []string{"what time is it"}, bot.received)
}
