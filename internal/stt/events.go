package stt

import (
	"encoding/json"
	"strings"
)

// Event types on the Deepgram live transcription socket.
const (
	EventResults      = "Results"
	EventUtteranceEnd = "UtteranceEnd"
	EventSpeechStart  = "SpeechStarted"
	EventMetadata     = "Metadata"
)

// Alternative is one transcription hypothesis.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Channel carries the hypotheses for one audio channel.
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Event is one JSON frame from the transcription socket.
type Event struct {
	Type        string  `json:"type"`
	Channel     Channel `json:"channel"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
}

// ParseEvent decodes one socket frame.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Transcript returns the top hypothesis text, or "" when absent.
func (e Event) Transcript() string {
	if len(e.Channel.Alternatives) == 0 {
		return ""
	}
	return e.Channel.Alternatives[0].Transcript
}

// utteranceBuffer accumulates finalized transcript segments until the
// service signals the end of an utterance.
type utteranceBuffer struct {
	finals []string
}

// add records a finalized segment. Interim and empty segments are ignored.
func (b *utteranceBuffer) add(transcript string, isFinal bool) {
	if !isFinal || strings.TrimSpace(transcript) == "" {
		return
	}
	b.finals = append(b.finals, transcript)
}

// complete drains the buffer into one utterance string. Returns false when
// nothing was accumulated.
func (b *utteranceBuffer) complete() (string, bool) {
	if len(b.finals) == 0 {
		return "", false
	}
	utterance := strings.Join(b.finals, " ")
	b.finals = nil
	return utterance, true
}
