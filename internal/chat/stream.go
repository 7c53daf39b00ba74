package chat

import (
	"context"
	"sort"
	"strings"

	"github.com/voxbridge/voxbridge/internal/llm"
)

// Completer issues streaming chat completion requests. Satisfied by
// *llm.Client; tests substitute scripted streams.
type Completer interface {
	StreamChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (<-chan llm.StreamResult, error)
}

// DeltaFunc receives assistant text fragments in arrival order. Returning an
// error aborts the round; the error propagates to the turn caller.
type DeltaFunc func(chunk string) error

// toolCallAccumulator reassembles fragmented tool-call deltas keyed by the
// completion API's zero-based index. Fragments for different indices may
// interleave; a given index's arguments are appended in arrival order.
type toolCallAccumulator struct {
	byIndex map[int]*llm.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]*llm.ToolCall)}
}

// add merges one delta's tool-call fragments. First sight of an index
// initializes id, type, name and arguments; later fragments only ever append
// to arguments.
func (a *toolCallAccumulator) add(fragments []llm.ToolCallChunk) {
	for _, f := range fragments {
		existing, ok := a.byIndex[f.Index]
		if !ok {
			call := &llm.ToolCall{ID: f.ID, Type: f.Type}
			if call.Type == "" {
				call.Type = llm.ToolTypeFunction
			}
			if f.Function != nil {
				call.Function.Name = f.Function.Name
				call.Function.Arguments = f.Function.Arguments
			}
			a.byIndex[f.Index] = call
			continue
		}
		if f.Function != nil && f.Function.Arguments != "" {
			existing.Function.Arguments += f.Function.Arguments
		}
	}
}

// calls returns the assembled tool calls ordered by ascending index, or nil
// when the round requested none.
func (a *toolCallAccumulator) calls() []llm.ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	indices := make([]int, 0, len(a.byIndex))
	for idx := range a.byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]llm.ToolCall, 0, len(indices))
	for _, idx := range indices {
		out = append(out, *a.byIndex[idx])
	}
	return out
}

// roundResult is the outcome of one fully drained completion round.
type roundResult struct {
	content   string
	toolCalls []llm.ToolCall
	usage     *llm.Usage
}

// collectStream drains one completion round. Text deltas are forwarded to
// onDelta immediately and accumulated into the returned content; tool-call
// fragments are merged by index and never surfaced mid-stream. Text carried
// alongside tool-call fragments is accumulated but not forwarded, so tool
// bookkeeping never mixes into the caller's output. Chunks with no choices
// are skipped after capturing any trailing usage report.
func collectStream(stream <-chan llm.StreamResult, onDelta DeltaFunc) (roundResult, error) {
	var content strings.Builder
	var usage *llm.Usage
	acc := newToolCallAccumulator()

	for res := range stream {
		if res.Err != nil {
			return roundResult{}, res.Err
		}
		if res.Chunk.Usage != nil {
			usage = res.Chunk.Usage
		}
		if len(res.Chunk.Choices) == 0 {
			continue
		}
		delta := res.Chunk.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			if len(delta.ToolCalls) == 0 && onDelta != nil {
				if err := onDelta(delta.Content); err != nil {
					return roundResult{}, err
				}
			}
		}
		if len(delta.ToolCalls) > 0 {
			acc.add(delta.ToolCalls)
		}
	}

	return roundResult{content: content.String(), toolCalls: acc.calls(), usage: usage}, nil
}
