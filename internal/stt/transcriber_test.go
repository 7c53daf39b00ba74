package stt

import (
	"context"
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
	"github.com/voxbridge/voxbridge/internal/voxerr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name           string
		frame          string
		wantType       string
		wantTranscript string
		wantFinal      bool
	}{
		{
			name:           "final result",
			frame:          `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world","confidence":0.98}]}}`,
			wantType:       EventResults,
			wantTranscript: "hello world",
			wantFinal:      true,
		},
		{
			name:           "interim result",
			frame:          `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
			wantType:       EventResults,
			wantTranscript: "hel",
		},
		{
			name:     "utterance end",
			frame:    `{"type":"UtteranceEnd","last_word_end":2.1}`,
			wantType: EventUtteranceEnd,
		},
		{
			name:     "no alternatives",
			frame:    `{"type":"Results","channel":{"alternatives":[]}}`,
			wantType: EventResults,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, event.Type)
			assert.Equal(t, tt.wantTranscript, event.Transcript())
			assert.Equal(t, tt.wantFinal, event.IsFinal)
		})
	}
}

func TestParseEventInvalid(t *testing.T) {
	_, err := ParseEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestUtteranceBuffer(t *testing.T) {
	var b utteranceBuffer

	b.add("hello", false) // interim, ignored
	b.add("hello there", true)
	b.add("   ", true) // whitespace, ignored
	b.add("how are you", true)

	utterance, ok := b.complete()
	require.True(t, ok)
	assert.Equal(t, "hello there how are you", utterance)

	// Buffer drained
	_, ok = b.complete()
	assert.False(t, ok)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("", Options{}, func(string) {}, testLogger())
	assert.ErrorIs(t, err, voxerr.ErrInvalidConfig)
}

// fakeDeepgram upgrades incoming connections and replays scripted frames.
func fakeDeepgram(t *testing.T, frames []string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()

		for _, frame := range frames {
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
		}
		// Hold the socket open until the client closes.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestLiveUtteranceDelivery(t *testing.T) {
	frames := []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"what time"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"is it"}]}}`,
		`{"type":"UtteranceEnd"}`,
	}
	ts := fakeDeepgram(t, frames)
	defer ts.Close()

	utterances := make(chan string, 1)
	tr, err := New("test-key", Options{
		BaseURL: "ws" + strings.TrimPrefix(ts.URL, "http"),
	}, func(u string) { utterances <- u }, testLogger())
	require.NoError(t, err)

	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	select {
	case u := <-utterances:
		assert.Equal(t, "what time is it", u)
	case <-time.After(5 * time.Second):
		t.Fatal("no utterance delivered")
	}
}

func TestPausedTranscriptsDropped(t *testing.T) {
	ts := fakeDeepgram(t, nil)
	defer ts.Close()

	utterances := make(chan string, 1)
	tr, err := New("test-key", Options{
		BaseURL: "ws" + strings.TrimPrefix(ts.URL, "http"),
	}, func(u string) { utterances <- u }, testLogger())
	require.NoError(t, err)

	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	tr.Pause()
	tr.handleFrame([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"ignored"}]}}`))
	tr.handleFrame([]byte(`{"type":"UtteranceEnd"}`))

	select {
	case u := <-utterances:
		t.Fatalf("unexpected utterance while paused: %q", u)
	case <-time.After(100 * time.Millisecond):
	}

	tr.Resume()
	tr.handleFrame([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"heard"}]}}`))
	tr.handleFrame([]byte(`{"type":"UtteranceEnd"}`))

	select {
	case u := <-utterances:
		assert.Equal(t, "heard", u)
	case <-time.After(time.Second):
		t.Fatal("no utterance after resume")
	}
}

func TestStartConnectionRefused(t *testing.T) {
	ts := fakeDeepgram(t, nil)
	defer ts.Close()

	tr, err := New("wrong-key", Options{
		BaseURL: "ws" + strings.TrimPrefix(ts.URL, "http"),
	}, func(string) {}, testLogger())
	require.NoError(t, err)

	err = tr.Start(context.Background())
	var connErr *voxerr.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, []string{"deepgram"}, connErr.Command)
}
