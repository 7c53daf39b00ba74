package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbridge/voxbridge/internal/llm"
)

func TestSetSystemMessageIdempotent(t *testing.T) {
	store := NewStore()

	store.SetSystemMessage("A")
	store.SetSystemMessage("B")

	history := store.History()
	require.Len(t, history, 1, "repeated installs must not stack system messages")
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Equal(t, "B", history[0].Content)
}

func TestSetSystemMessageAfterUserTurns(t *testing.T) {
	store := NewStore()
	store.AppendUser("hello")

	store.SetSystemMessage("prompt")

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Equal(t, llm.RoleUser, history[1].Role)
}

func TestTrim(t *testing.T) {
	// Build a transcript: system + 6 user/assistant entries labeled 1..6.
	build := func(withSystem bool) *Store {
		store := NewStore()
		if withSystem {
			store.SetSystemMessage("sys")
		}
		for i := 1; i <= 6; i++ {
			store.AppendUser(fmt.Sprintf("msg-%d", i))
		}
		return store
	}

	tests := []struct {
		name       string
		withSystem bool
		max        int
		wantLen    int
		wantFirst  string
		wantLast   string
	}{
		{"no trim needed", true, 10, 7, "sys", "msg-6"},
		{"trim to 4", true, 4, 4, "sys", "msg-6"},
		{"trim to 2", true, 2, 2, "sys", "msg-6"},
		{"max 1 keeps only system", true, 1, 1, "sys", "sys"},
		{"max 0 keeps only system", true, 0, 1, "sys", "sys"},
		{"no system message", false, 3, 3, "msg-4", "msg-6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := build(tt.withSystem)
			store.Trim(tt.max)

			history := store.History()
			require.Len(t, history, tt.wantLen)
			assert.Equal(t, tt.wantFirst, history[0].Content)
			assert.Equal(t, tt.wantLast, history[len(history)-1].Content)
		})
	}
}

func TestTrimPreservesRelativeOrder(t *testing.T) {
	store := NewStore()
	store.SetSystemMessage("sys")
	for i := 1; i <= 8; i++ {
		store.AppendUser(fmt.Sprintf("msg-%d", i))
	}

	store.Trim(5)

	history := store.History()
	require.Len(t, history, 5)
	assert.Equal(t, "sys", history[0].Content)
	for i, want := range []string{"msg-5", "msg-6", "msg-7", "msg-8"} {
		assert.Equal(t, want, history[i+1].Content)
	}
}

func TestClearReinstallsSystemMessage(t *testing.T) {
	store := NewStore()
	store.SetSystemMessage("sys")
	store.AppendUser("hello")
	store.AppendAssistant("hi", nil)

	store.Clear()

	history := store.History()
	require.Len(t, history, 1)
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Equal(t, "sys", history[0].Content)
}

func TestClearWithoutSystemMessage(t *testing.T) {
	store := NewStore()
	store.AppendUser("hello")

	store.Clear()

	assert.Zero(t, store.Len())
}

func TestAppendToolResult(t *testing.T) {
	store := NewStore()
	store.AppendToolResult("call_1", "4")

	history := store.History()
	require.Len(t, history, 1)
	assert.Equal(t, llm.RoleTool, history[0].Role)
	assert.Equal(t, "call_1", history[0].ToolCallID)
	assert.Equal(t, "4", history[0].Content)
}

func TestHistoryReturnsCopy(t *testing.T) {
	store := NewStore()
	store.AppendUser("original")

	history := store.History()
	history[0].Content = "mutated"

	assert.Equal(t, "original", store.History()[0].Content)
}
