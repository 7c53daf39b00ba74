package server

import (
	"github.com/voxbridge/voxbridge/internal/llm"
	"github.com/voxbridge/voxbridge/internal/serverconfig"
)

// Client-to-server message types.
const (
	TypeTextMessage  = "text_message"
	TypeGetHistory   = "get_history"
	TypeClearHistory = "clear_history"
	TypeGetConfig    = "get_config"
	TypePing         = "ping"
)

// Server-to-client event types.
const (
	TypeMessageStart    = "message_start"
	TypeTextChunk       = "text_chunk"
	TypeMessageComplete = "message_complete"
	TypeHistory         = "history"
	TypeHistoryCleared  = "history_cleared"
	TypeConfig          = "config"
	TypeTranscript      = "transcript"
	TypePong            = "pong"
	TypeError           = "error"
)

// ClientMessage is one JSON frame from a client.
type ClientMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
}

// ServerEvent is one JSON frame to a client. Fields beyond Type and ID are
// populated per event type.
type ServerEvent struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	Content string             `json:"content,omitempty"`
	History []llm.Message      `json:"history,omitempty"`
	Config  *serverconfig.Data `json:"config,omitempty"`
	Error   string             `json:"error,omitempty"`
}
