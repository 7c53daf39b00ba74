// Package chat implements the streaming conversation engine: the transcript
// store, the streaming completion driver, and the tool-call orchestration
// loop.
package chat

import "github.com/voxbridge/voxbridge/internal/llm"

// Store is the ordered, mutable transcript of one conversation. A Store is
// owned by a single conversation and is never mutated concurrently; the
// transport layer serializes turns per connection.
type Store struct {
	system   *llm.Message
	messages []llm.Message
}

// NewStore creates an empty transcript.
func NewStore() *Store {
	return &Store{}
}

// SetSystemMessage installs or replaces the system message. If the first
// transcript entry is already a system message its content is replaced in
// place; otherwise a new system entry is inserted at position 0. Safe to call
// repeatedly, e.g. on config hot-reload.
func (s *Store) SetSystemMessage(content string) {
	s.system = &llm.Message{Role: llm.RoleSystem, Content: content}

	if len(s.messages) > 0 && s.messages[0].Role == llm.RoleSystem {
		s.messages[0].Content = content
		return
	}
	s.messages = append([]llm.Message{{Role: llm.RoleSystem, Content: content}}, s.messages...)
}

// SystemMessage returns the currently installed system prompt text and
// whether one has been set.
func (s *Store) SystemMessage() (string, bool) {
	if s.system == nil {
		return "", false
	}
	return s.system.Content, true
}

// AppendUser appends a user message.
func (s *Store) AppendUser(content string) {
	s.messages = append(s.messages, llm.Message{Role: llm.RoleUser, Content: content})
}

// AppendAssistant appends an assistant message with optional tool calls.
func (s *Store) AppendAssistant(content string, toolCalls []llm.ToolCall) {
	s.messages = append(s.messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AppendToolResult appends a tool result correlated to the call that
// produced it.
func (s *Store) AppendToolResult(toolCallID, content string) {
	s.messages = append(s.messages, llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
	})
}

// Trim bounds the transcript to max entries, keeping the system message plus
// the most recent max-1 entries. Called before appending a new user turn so
// the bound accounts for the incoming message. A max of 1 or less leaves only
// the system message.
func (s *Store) Trim(max int) {
	if len(s.messages) <= max {
		return
	}

	if len(s.messages) > 0 && s.messages[0].Role == llm.RoleSystem {
		keep := max - 1
		if keep < 0 {
			keep = 0
		}
		tail := s.messages[len(s.messages)-keep:]
		trimmed := make([]llm.Message, 0, keep+1)
		trimmed = append(trimmed, s.messages[0])
		trimmed = append(trimmed, tail...)
		s.messages = trimmed
		return
	}

	if max <= 0 {
		s.messages = nil
		return
	}
	s.messages = append([]llm.Message(nil), s.messages[len(s.messages)-max:]...)
}

// Clear empties the transcript and re-installs the current system message, so
// a cleared conversation is immediately ready for a new turn.
func (s *Store) Clear() {
	s.messages = nil
	if s.system != nil {
		s.messages = append(s.messages, *s.system)
	}
}

// History returns a snapshot copy of the transcript.
func (s *Store) History() []llm.Message {
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of transcript entries.
func (s *Store) Len() int {
	return len(s.messages)
}
