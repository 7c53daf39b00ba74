package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbridge/voxbridge/internal/llm"
)

// streamOf converts scripted results into a closed channel, as the client
// delivers them.
func streamOf(results ...llm.StreamResult) <-chan llm.StreamResult {
	ch := make(chan llm.StreamResult, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	return ch
}

func textChunk(text string) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.ChatCompletionChunk{
		Choices: []llm.ChunkChoice{{Delta: llm.ChunkDelta{Content: text}}},
	}}
}

func toolChunk(fragments ...llm.ToolCallChunk) llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.ChatCompletionChunk{
		Choices: []llm.ChunkChoice{{Delta: llm.ChunkDelta{ToolCalls: fragments}}},
	}}
}

func heartbeatChunk() llm.StreamResult {
	return llm.StreamResult{Chunk: &llm.ChatCompletionChunk{}}
}

func argsFragment(index int, args string) llm.ToolCallChunk {
	return llm.ToolCallChunk{Index: index, Function: &llm.FunctionCallChunk{Arguments: args}}
}

func TestCollectStreamText(t *testing.T) {
	var yielded []string
	res, err := collectStream(
		streamOf(textChunk("The answer"), heartbeatChunk(), textChunk(" is 4.")),
		func(chunk string) error {
			yielded = append(yielded, chunk)
			return nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", res.content)
	assert.Equal(t, []string{"The answer", " is 4."}, yielded, "fragments forwarded in arrival order")
	assert.Nil(t, res.toolCalls)
}

func TestCollectStreamToolCallReassembly(t *testing.T) {
	// Index 0's name arrives in fragment 1, its arguments split across
	// fragments 2, 3 and 5, with an unrelated index 1 fragment interleaved
	// at position 4.
	stream := streamOf(
		toolChunk(llm.ToolCallChunk{
			Index:    0,
			ID:       "call_a",
			Type:     "function",
			Function: &llm.FunctionCallChunk{Name: "calculate"},
		}),
		toolChunk(argsFragment(0, `{"operation":`)),
		toolChunk(argsFragment(0, `"add",`)),
		toolChunk(llm.ToolCallChunk{
			Index:    1,
			ID:       "call_b",
			Function: &llm.FunctionCallChunk{Name: "echo", Arguments: `{"message":"hi"}`},
		}),
		toolChunk(argsFragment(0, `"a":2,"b":2}`)),
	)

	res, err := collectStream(stream, nil)
	require.NoError(t, err)
	assert.Empty(t, res.content)

	require.Len(t, res.toolCalls, 2)
	assert.Equal(t, "call_a", res.toolCalls[0].ID)
	assert.Equal(t, "calculate", res.toolCalls[0].Function.Name)
	assert.Equal(t, `{"operation":"add","a":2,"b":2}`, res.toolCalls[0].Function.Arguments)
	assert.Equal(t, "call_b", res.toolCalls[1].ID)
	assert.Equal(t, `{"message":"hi"}`, res.toolCalls[1].Function.Arguments)
}

func TestCollectStreamOrdersCallsByIndex(t *testing.T) {
	// Index 1 appears before index 0; assembled output is ordered by index,
	// not by fragment arrival.
	stream := streamOf(
		toolChunk(llm.ToolCallChunk{Index: 1, ID: "call_b", Function: &llm.FunctionCallChunk{Name: "second"}}),
		toolChunk(llm.ToolCallChunk{Index: 0, ID: "call_a", Function: &llm.FunctionCallChunk{Name: "first"}}),
	)

	res, err := collectStream(stream, nil)
	require.NoError(t, err)
	require.Len(t, res.toolCalls, 2)
	assert.Equal(t, "first", res.toolCalls[0].Function.Name)
	assert.Equal(t, "second", res.toolCalls[1].Function.Name)
}

func TestCollectStreamDefaultsMissingFields(t *testing.T) {
	stream := streamOf(toolChunk(llm.ToolCallChunk{Index: 0}))

	res, err := collectStream(stream, nil)
	require.NoError(t, err)
	require.Len(t, res.toolCalls, 1)
	assert.Empty(t, res.toolCalls[0].ID)
	assert.Equal(t, llm.ToolTypeFunction, res.toolCalls[0].Type)
	assert.Empty(t, res.toolCalls[0].Function.Name)
	assert.Empty(t, res.toolCalls[0].Function.Arguments)
}

func TestCollectStreamSuppressesTextAlongsideToolCalls(t *testing.T) {
	// A delta carrying both text and tool-call fragments accumulates the
	// text but does not forward it, so tool bookkeeping never mixes into
	// the caller's output.
	mixed := llm.StreamResult{Chunk: &llm.ChatCompletionChunk{
		Choices: []llm.ChunkChoice{{Delta: llm.ChunkDelta{
			Content:   "thinking",
			ToolCalls: []llm.ToolCallChunk{{Index: 0, ID: "call_a", Function: &llm.FunctionCallChunk{Name: "echo"}}},
		}}},
	}}

	var yielded []string
	res, err := collectStream(streamOf(mixed), func(chunk string) error {
		yielded = append(yielded, chunk)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "thinking", res.content)
	assert.Empty(t, yielded)
	require.Len(t, res.toolCalls, 1)
}

func TestCollectStreamPropagatesStreamError(t *testing.T) {
	streamErr := errors.New("connection reset")
	_, err := collectStream(streamOf(textChunk("partial"), llm.StreamResult{Err: streamErr}), nil)
	assert.ErrorIs(t, err, streamErr)
}

func TestCollectStreamPropagatesDeltaError(t *testing.T) {
	deltaErr := errors.New("client gone")
	_, err := collectStream(streamOf(textChunk("hi")), func(string) error {
		return deltaErr
	})
	assert.ErrorIs(t, err, deltaErr)
}

func TestCollectStreamCapturesUsage(t *testing.T) {
	// Usage arrives in a trailing chunk with no choices.
	trailing := llm.StreamResult{Chunk: &llm.ChatCompletionChunk{
		Usage: &llm.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}}

	res, err := collectStream(streamOf(textChunk("hi"), trailing), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.content)
	require.NotNil(t, res.usage)
	assert.Equal(t, int64(12), res.usage.PromptTokens)
	assert.Equal(t, int64(4), res.usage.CompletionTokens)
	assert.Equal(t, int64(16), res.usage.TotalTokens)
}
