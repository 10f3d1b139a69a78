package channel

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Kind discriminates the streaming event union.
type Kind string

const (
	// KindFragment carries an incremental piece of assistant reply text.
	KindFragment Kind = "fragment"
	// KindTurnComplete carries the full reply text and ends the turn.
	KindTurnComplete Kind = "turn_complete"
	// KindAudioReady carries synthesized speech audio for a finished turn.
	KindAudioReady Kind = "audio_ready"
	// KindBalanceExhausted signals a quota stop; non-fatal.
	KindBalanceExhausted Kind = "balance_exhausted"
	// KindDisconnected is emitted once when the connection is lost.
	KindDisconnected Kind = "disconnected"
)

// Event is one message from the backend. Events for a single conversation
// arrive in order; consumers must process them serially.
type Event struct {
	Kind   Kind
	Text   string    // fragment delta, or full text on turn_complete
	Audio  []byte    // audio_ready payload
	TurnID uuid.UUID // audio_ready correlation; Nil when the backend omits it
	Reason string    // balance_exhausted / disconnected detail
}

// ContextEntry is one prior chat entry included in a turn submission.
type ContextEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TurnRequest is a single user turn bound for the backend.
type TurnRequest struct {
	Text         string
	Context      []ContextEntry
	Conversation string
	Token        string
}

// Wire frames. Text frames are {"event": ..., "data": ...}; the synthesized
// audio itself arrives as a binary frame following its audio_generated
// announcement.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	wireResponse         = "response"
	wireResponseFinished = "responseFinished"
	wireAudioGenerated   = "audio_generated"
	wireVideoGenerated   = "video_generated"
	wireOutOfBalance     = "out_of_balance"

	wireMessage       = "message"
	wireSpeechRequest = "speech_request"
)

type responseData struct {
	Chunk string `json:"chunk"`
}

type responseFinishedData struct {
	AIResponse string `json:"ai_response"`
}

type outOfBalanceData struct {
	Reason string `json:"reason"`
}

type audioGeneratedData struct {
	Turn string `json:"turn,omitempty"`
}

type messageData struct {
	Message      messageBody    `json:"message"`
	Context      []ContextEntry `json:"context"`
	Conversation string         `json:"conversation"`
	Token        string         `json:"token"`
}

type messageBody struct {
	Text        string   `json:"text"`
	Type        string   `json:"type"`
	Attachments []string `json:"attachments"`
}

type speechRequestData struct {
	Text string `json:"text"`
	Turn string `json:"turn,omitempty"`
}
