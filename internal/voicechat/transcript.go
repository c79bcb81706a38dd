package voicechat

import (
	"strings"
	"time"
)

// Role identifies the speaker of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one finalized utterance in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// turnAssembler accumulates incremental transcription fragments until the
// model signals the turn boundary. Fragments arrive interleaved for both
// speakers within a single exchange.
type turnAssembler struct {
	user      strings.Builder
	assistant strings.Builder
}

func (a *turnAssembler) addUser(fragment string) {
	a.user.WriteString(fragment)
}

func (a *turnAssembler) addAssistant(fragment string) {
	a.assistant.WriteString(fragment)
}

// flush finalizes the accumulated exchange: the user's turn first, then
// the assistant's, omitting whichever side has no text. The assembler is
// reset for the next exchange.
func (a *turnAssembler) flush(now time.Time) []Turn {
	var turns []Turn
	if a.user.Len() > 0 {
		turns = append(turns, Turn{Role: RoleUser, Text: a.user.String(), CreatedAt: now})
	}
	if a.assistant.Len() > 0 {
		turns = append(turns, Turn{Role: RoleAssistant, Text: a.assistant.String(), CreatedAt: now})
	}
	a.reset()
	return turns
}

func (a *turnAssembler) reset() {
	a.user.Reset()
	a.assistant.Reset()
}
