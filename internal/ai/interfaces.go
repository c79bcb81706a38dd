package ai

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when the provider rejects the API key.
var ErrUnauthorized = errors.New("provider rejected credentials")

// ServerEvent carries the fields one realtime server message may populate.
// Any combination of fields can co-occur in a single event; consumers must
// handle each populated field independently.
type ServerEvent struct {
	// Audio is a base64-wrapped PCM16 chunk at the playback sample rate.
	Audio string
	// InputTranscript is an incremental transcription fragment of the
	// user's speech.
	InputTranscript string
	// OutputTranscript is an incremental transcription fragment of the
	// model's speech.
	OutputTranscript string
	// TurnComplete marks the end of the current exchange.
	TurnComplete bool
	// Interrupted signals the model detected the user speaking over it.
	Interrupted bool
}

// RealtimeHooks receives channel callbacks. Hooks are invoked from the
// channel's read goroutine; at most one of OnClose or OnError fires when
// the channel ends.
type RealtimeHooks struct {
	OnEvent func(ServerEvent)
	OnError func(error)
	OnClose func()
}

// RealtimeChannel is a live bidirectional audio channel to a speech model.
type RealtimeChannel interface {
	// SendAudio forwards one base64-wrapped PCM16 capture frame.
	SendAudio(data string) error

	// SendText injects a typed user message into the conversation.
	SendText(text string) error

	// Close terminates the channel. Safe to call more than once; OnClose
	// and OnError do not fire for a locally initiated close.
	Close() error
}

// RealtimeConfig holds configuration for realtime channels.
type RealtimeConfig struct {
	Model           string
	Voice           string
	InputSampleRate int
}

// RealtimeProvider opens realtime channels to a speech model.
type RealtimeProvider interface {
	OpenRealtimeChannel(ctx context.Context, config RealtimeConfig, systemPrompt string, hooks RealtimeHooks) (RealtimeChannel, error)
}

// ChatMessage represents a message in a chat conversation
type ChatMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// ChatConfig holds configuration for chat completions
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatProvider defines the interface for text-to-text chat completions (used for post-processing)
type ChatProvider interface {
	// ChatCompletion sends a conversation to the LLM and returns the text response
	ChatCompletion(ctx context.Context, messages []ChatMessage, config ChatConfig) (string, error)
}
