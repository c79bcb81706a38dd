package gemini

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/tutor360/tutorvoice/internal/ai"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// liveChannel is one open BidiGenerateContent websocket. Writes are
// serialized behind a mutex; a single read goroutine demuxes server
// messages into the hooks.
type liveChannel struct {
	conn       *websocket.Conn
	hooks      ai.RealtimeHooks
	logger     *logger.Logger
	sampleRate int

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (c *liveChannel) writeJSON(msg *clientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// SendAudio forwards one base64 PCM16 frame as a realtime media chunk.
func (c *liveChannel) SendAudio(data string) error {
	if c.closed.Load() {
		return fmt.Errorf("channel closed")
	}
	return c.writeJSON(&clientMessage{
		RealtimeInput: &realtimeInput{
			MediaChunks: []mediaChunk{{
				MimeType: fmt.Sprintf("audio/pcm;rate=%d", c.sampleRate),
				Data:     data,
			}},
		},
	})
}

// SendText injects a typed user turn into the conversation.
func (c *liveChannel) SendText(text string) error {
	if c.closed.Load() {
		return fmt.Errorf("channel closed")
	}
	return c.writeJSON(&clientMessage{
		ClientContent: &clientContent{
			Turns: []content{{
				Role:  "user",
				Parts: []part{{Text: text}},
			}},
			TurnComplete: true,
		},
	})
}

// Close terminates the websocket. Idempotent; suppresses the hook
// callbacks the read loop would otherwise fire.
func (c *liveChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// readPump reads until the connection ends, translating each server
// message into a provider-neutral event.
func (c *liveChannel) readPump() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.CompareAndSwap(false, true) {
				_ = c.conn.Close()
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("Server closed realtime channel")
					if c.hooks.OnClose != nil {
						c.hooks.OnClose()
					}
				} else {
					c.logger.Error("Realtime channel read failed", logger.Error(err))
					if c.hooks.OnError != nil {
						c.hooks.OnError(err)
					}
				}
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("Dropping unparseable server message", logger.Error(err))
			continue
		}

		event, ok := eventFromMessage(&msg)
		if !ok {
			continue
		}
		if c.hooks.OnEvent != nil {
			c.hooks.OnEvent(event)
		}
	}
}

// eventFromMessage flattens one server message into an event. All fields
// of the message are carried over; they may co-occur.
func eventFromMessage(msg *serverMessage) (ai.ServerEvent, bool) {
	sc := msg.ServerContent
	if sc == nil {
		return ai.ServerEvent{}, false
	}

	var event ai.ServerEvent
	if sc.ModelTurn != nil {
		var audioParts []string
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				audioParts = append(audioParts, p.InlineData.Data)
			}
			if p.Text != "" {
				event.OutputTranscript += p.Text
			}
		}
		event.Audio = joinBase64(audioParts)
	}
	if sc.InputTranscription != nil {
		event.InputTranscript += sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		event.OutputTranscript += sc.OutputTranscription.Text
	}
	event.TurnComplete = sc.TurnComplete
	event.Interrupted = sc.Interrupted

	empty := event.Audio == "" && event.InputTranscript == "" &&
		event.OutputTranscript == "" && !event.TurnComplete && !event.Interrupted
	return event, !empty
}

// joinBase64 merges multiple base64 chunks into one. Chunks after the
// first may carry padding, so naive string concatenation is not valid;
// multi-chunk messages are decoded and re-encoded as a whole.
func joinBase64(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	var joined []byte
	for _, p := range parts {
		decoded, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			// Undecodable chunks surface downstream; pass through as-is.
			return strings.Join(parts, "")
		}
		joined = append(joined, decoded...)
	}
	return base64.StdEncoding.EncodeToString(joined)
}
