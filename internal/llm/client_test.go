package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseHandler writes the given data payloads as SSE events followed by [DONE].
func sseHandler(t *testing.T, payloads []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream, "client must force streaming on")

		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestStreamChatCompletion(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"choices":[]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.StreamChatCompletion(ctx, &ChatCompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	var chunks []*ChatCompletionChunk
	for res := range stream {
		require.NoError(t, res.Err)
		chunks = append(chunks, res.Chunk)
	}

	require.Len(t, chunks, 4)
	assert.Equal(t, "Hel", chunks[0].Choices[0].Delta.Content)
	assert.Equal(t, "lo", chunks[1].Choices[0].Delta.Content)
	assert.Empty(t, chunks[2].Choices, "heartbeat chunk has no choices")
	require.NotNil(t, chunks[3].Choices[0].FinishReason)
	assert.Equal(t, "stop", *chunks[3].Choices[0].FinishReason)
}

func TestStreamChatCompletionToolCallFragments(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calculate"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\":"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"2}"}}]}}]}`,
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	stream, err := client.StreamChatCompletion(context.Background(), &ChatCompletionRequest{
		Model: "gpt-4o-mini",
	})
	require.NoError(t, err)

	var fragments []ToolCallChunk
	for res := range stream {
		require.NoError(t, res.Err)
		for _, choice := range res.Chunk.Choices {
			fragments = append(fragments, choice.Delta.ToolCalls...)
		}
	}

	require.Len(t, fragments, 3)
	assert.Equal(t, "call_1", fragments[0].ID)
	assert.Equal(t, "calculate", fragments[0].Function.Name)
	assert.Equal(t, `{"a":`, fragments[1].Function.Arguments)
	assert.Equal(t, "2}", fragments[2].Function.Arguments)
}

func TestStreamChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error","code":"rate_limit_exceeded"}}`)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := client.StreamChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
	assert.Equal(t, "rate limited", apiErr.Message)
}

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    *APIError
		wantNil bool
	}{
		{
			name: "error envelope",
			body: `{"error":{"message":"bad","type":"invalid_request_error"}}`,
			want: &APIError{Message: "bad", Type: "invalid_request_error"},
		},
		{
			name:    "no error field",
			body:    `{"ok":true}`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseErrorResponse([]byte(tt.body))
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamAbandonedAfterCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"one\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"two\"}}]}\n\n")
		flusher.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient("test-key", WithBaseURL(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.StreamChatCompletion(ctx, &ChatCompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	res := <-stream
	require.NoError(t, res.Err)

	// Stop receiving and cancel: the reader must exit and close the
	// channel rather than block on its next send forever.
	cancel()
	time.Sleep(100 * time.Millisecond)

	select {
	case _, ok := <-stream:
		assert.False(t, ok, "channel should be closed, not delivering")
	case <-time.After(2 * time.Second):
		t.Fatal("stream channel never closed after cancellation")
	}
}
