package gemini

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseServer(t *testing.T, raw string) *serverMessage {
	t.Helper()
	var msg serverMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return &msg
}

func TestEventFromAudioMessage(t *testing.T) {
	msg := parseServer(t, `{
		"serverContent": {
			"modelTurn": {
				"parts": [{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAAA"}}]
			}
		}
	}`)

	event, ok := eventFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, "AAAA", event.Audio)
	assert.Empty(t, event.OutputTranscript)
	assert.False(t, event.TurnComplete)
}

func TestEventFromCooccurringFields(t *testing.T) {
	// A single message may carry audio, both transcripts and the turn
	// boundary at once.
	msg := parseServer(t, `{
		"serverContent": {
			"modelTurn": {
				"parts": [{"inlineData": {"data": "UUUU"}}]
			},
			"inputTranscription": {"text": "que tal"},
			"outputTranscription": {"text": "muy bien"},
			"turnComplete": true
		}
	}`)

	event, ok := eventFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, "UUUU", event.Audio)
	assert.Equal(t, "que tal", event.InputTranscript)
	assert.Equal(t, "muy bien", event.OutputTranscript)
	assert.True(t, event.TurnComplete)
	assert.False(t, event.Interrupted)
}

func TestEventFromInterruptedMessage(t *testing.T) {
	msg := parseServer(t, `{"serverContent": {"interrupted": true}}`)

	event, ok := eventFromMessage(msg)
	require.True(t, ok)
	assert.True(t, event.Interrupted)
}

func TestEventFromMultipleAudioParts(t *testing.T) {
	// Each chunk carries its own padding; the merged result must decode
	// to the concatenated bytes.
	msg := parseServer(t, `{
		"serverContent": {
			"modelTurn": {
				"parts": [
					{"inlineData": {"data": "AAA="}},
					{"text": "hola"},
					{"inlineData": {"data": "AAE="}}
				]
			}
		}
	}`)

	event, ok := eventFromMessage(msg)
	require.True(t, ok)
	joined, err := base64.StdEncoding.DecodeString(event.Audio)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01}, joined)
	assert.Equal(t, "hola", event.OutputTranscript)
}

func TestSetupCompleteProducesNoEvent(t *testing.T) {
	msg := parseServer(t, `{"setupComplete": {}}`)
	_, ok := eventFromMessage(msg)
	assert.False(t, ok)
}

func TestMediaChunkWireFormat(t *testing.T) {
	out, err := json.Marshal(&clientMessage{
		RealtimeInput: &realtimeInput{
			MediaChunks: []mediaChunk{{MimeType: "audio/pcm;rate=16000", Data: "AAAA"}},
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"realtime_input": {
			"media_chunks": [{"mime_type": "audio/pcm;rate=16000", "data": "AAAA"}]
		}
	}`, string(out))
}

func TestClientContentWireFormat(t *testing.T) {
	out, err := json.Marshal(&clientMessage{
		ClientContent: &clientContent{
			Turns:        []content{{Role: "user", Parts: []part{{Text: "hola"}}}},
			TurnComplete: true,
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"client_content": {
			"turns": [{"role": "user", "parts": [{"text": "hola"}]}],
			"turn_complete": true
		}
	}`, string(out))
}
