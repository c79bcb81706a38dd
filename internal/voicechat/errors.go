package voicechat

import "fmt"

// ErrorKind classifies session failures for callers that branch on them.
type ErrorKind int

const (
	// ErrorPermission covers capture devices that cannot be opened and
	// rejected credentials.
	ErrorPermission ErrorKind = iota
	// ErrorHandshake covers failures establishing the realtime channel.
	ErrorHandshake
	// ErrorChannel covers failures on an established channel.
	ErrorChannel
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorPermission:
		return "permission"
	case ErrorHandshake:
		return "handshake"
	case ErrorChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// SessionError is the error type surfaced by session start and teardown.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("session %s error", e.Kind)
}

func (e *SessionError) Unwrap() error { return e.Err }
