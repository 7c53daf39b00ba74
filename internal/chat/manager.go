package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxbridge/voxbridge/internal/llm"
)

// DefaultMaxToolIterations bounds the number of completion/tool rounds per
// turn. A conservative ceiling against runaway tool-calling loops.
const DefaultMaxToolIterations = 5

// DefaultSummaryPrompt is the synthetic user message appended when the
// iteration bound is exhausted.
const DefaultSummaryPrompt = "I've reached my tool call limit (5 iterations per message). " +
	"Please summarize what you've accomplished so far, what still needs to be done, " +
	"and ask if I'd like you to continue by sending another message."

// ToolSession is the narrow tool-execution interface the orchestration loop
// depends on. Satisfied by *session.Session.
type ToolSession interface {
	// ToolsForCompletion returns the live tool catalog in the completion
	// API's function-calling schema.
	ToolsForCompletion(ctx context.Context) ([]llm.Tool, error)

	// Invoke executes a named tool with a raw JSON argument string. It never
	// fails: any parse or execution error is returned as a synthesized error
	// string the model can react to.
	Invoke(ctx context.Context, name, arguments string) string
}

// Params are the completion parameters for one conversation, supplied by the
// configuration collaborator.
type Params struct {
	Model            string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	PresencePenalty  float64
	FrequencyPenalty float64
	MaxHistory       int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxIterations overrides the tool iteration bound.
func WithMaxIterations(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxIterations = n
		}
	}
}

// WithSummaryPrompt overrides the max-iteration summary prompt wording.
func WithSummaryPrompt(prompt string) ManagerOption {
	return func(m *Manager) {
		if prompt != "" {
			m.summaryPrompt = prompt
		}
	}
}

// ToolObserver receives the name and wall-clock duration of every executed
// tool call.
type ToolObserver func(name string, d time.Duration)

// RoundObserver receives the duration and token usage of every completion
// round. Usage is nil when the API does not report it.
type RoundObserver func(d time.Duration, usage *llm.Usage)

// WithToolObserver registers a per-tool-call observer.
func WithToolObserver(fn ToolObserver) ManagerOption {
	return func(m *Manager) {
		m.onTool = fn
	}
}

// WithRoundObserver registers a per-completion-round observer.
func WithRoundObserver(fn RoundObserver) ManagerOption {
	return func(m *Manager) {
		m.onRound = fn
	}
}

// Manager drives multi-round completion/tool interaction for one
// conversation. It owns the transcript store and alternates between asking
// the model and executing requested tools, bounded by maxIterations, with a
// single tool-disabled summary round when the bound is hit.
//
// A Manager processes one turn at a time; serializing concurrent turns is the
// caller's responsibility.
type Manager struct {
	completer Completer
	tools     ToolSession
	store     *Store
	logger    *slog.Logger

	maxIterations int
	summaryPrompt string
	onTool        ToolObserver
	onRound       RoundObserver
}

// NewManager creates a conversation manager with explicit dependencies.
func NewManager(completer Completer, tools ToolSession, store *Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		completer:     completer,
		tools:         tools,
		store:         store,
		logger:        logger,
		maxIterations: DefaultMaxToolIterations,
		summaryPrompt: DefaultSummaryPrompt,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the transcript store owned by this manager.
func (m *Manager) Store() *Store {
	return m.store
}

// ProcessTurn processes one user message through to the assistant's fully
// delivered response, streaming text fragments to onDelta in arrival order.
//
// Tool execution failures are converted to tool-result messages and never
// abort the turn. Completion API failures propagate; the incomplete round's
// assistant message is not appended, leaving the transcript in its last
// consistent state.
func (m *Manager) ProcessTurn(ctx context.Context, userMessage string, params Params, onDelta DeltaFunc) error {
	m.store.Trim(params.MaxHistory)
	m.store.AppendUser(userMessage)

	// Re-fetched every turn so tools added mid-session are never silently
	// dropped.
	tools, err := m.tools.ToolsForCompletion(ctx)
	if err != nil {
		return err
	}

	for iteration := 1; iteration <= m.maxIterations; iteration++ {
		round, err := m.streamRound(ctx, params, tools, "auto", onDelta)
		if err != nil {
			return err
		}
		m.store.AppendAssistant(round.content, round.toolCalls)

		if len(round.toolCalls) == 0 {
			return nil
		}

		names := make([]string, len(round.toolCalls))
		for i, tc := range round.toolCalls {
			names[i] = tc.Function.Name
		}
		m.logger.Info("executing tool calls", "iteration", iteration, "count", len(round.toolCalls), "tools", names)

		m.executeToolCalls(ctx, round.toolCalls)
	}

	// Every round up to the bound still requested tools; run one
	// tool-disabled round so the caller always receives a terminating,
	// human-readable response.
	return m.summarize(ctx, params, tools, onDelta)
}

// streamRound issues one streaming completion round over the current
// transcript and drains it fully.
func (m *Manager) streamRound(ctx context.Context, params Params, tools []llm.Tool, toolChoice string, onDelta DeltaFunc) (roundResult, error) {
	temperature := params.Temperature
	topP := params.TopP

	req := &llm.ChatCompletionRequest{
		Model:            params.Model,
		Messages:         m.store.History(),
		Tools:            tools,
		ToolChoice:       toolChoice,
		Temperature:      &temperature,
		TopP:             &topP,
		MaxTokens:        params.MaxTokens,
		PresencePenalty:  params.PresencePenalty,
		FrequencyPenalty: params.FrequencyPenalty,
		StreamOptions:    &llm.StreamOptions{IncludeUsage: true},
	}

	start := time.Now()
	stream, err := m.completer.StreamChatCompletion(ctx, req)
	if err != nil {
		return roundResult{}, err
	}
	round, err := collectStream(stream, onDelta)
	if err != nil {
		return roundResult{}, err
	}
	if m.onRound != nil {
		m.onRound(time.Since(start), round.usage)
	}
	return round, nil
}

// executeToolCalls invokes each call sequentially in the order the model
// listed them and appends the results as tool messages. Sequential execution
// keeps tool-result ordering deterministic and matching the tool_calls list.
func (m *Manager) executeToolCalls(ctx context.Context, toolCalls []llm.ToolCall) {
	for _, tc := range toolCalls {
		start := time.Now()
		result := m.tools.Invoke(ctx, tc.Function.Name, tc.Function.Arguments)
		if m.onTool != nil {
			m.onTool(tc.Function.Name, time.Since(start))
		}
		m.store.AppendToolResult(tc.ID, result)
	}
}

// summarize runs the max-iteration fallback: append the synthetic summary
// prompt, stream one completion round with tools disabled, and commit the
// resulting assistant message.
func (m *Manager) summarize(ctx context.Context, params Params, tools []llm.Tool, onDelta DeltaFunc) error {
	m.logger.Info("reached maximum tool iterations, asking model to summarize progress")

	m.store.AppendUser(m.summaryPrompt)

	round, err := m.streamRound(ctx, params, tools, "none", onDelta)
	if err != nil {
		return err
	}
	m.store.AppendAssistant(round.content, nil)
	return nil
}
