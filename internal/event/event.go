// Package event defines the notifications a listening session publishes to
// its host.
package event

import (
	"time"

	"github.com/rbright/canto/internal/recognizer"
)

type Kind string

const (
	KindSoundLevel Kind = "sound_level"
	KindResult     Kind = "result"
	KindError      Kind = "error"
	KindState      Kind = "state"
)

// Event is one host-facing notification. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	IsFinal   bool      `json:"is_final,omitempty"`
	Level     float32   `json:"level,omitempty"`
	Code      string    `json:"code,omitempty"`
	Class     string    `json:"class,omitempty"`
	Fatal     bool      `json:"fatal,omitempty"`
	State     string    `json:"state,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives session events. Emit is called from the session owner
// goroutine and must not block on I/O.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

func SoundLevel(sessionID string, level float32, at time.Time) Event {
	return Event{Kind: KindSoundLevel, SessionID: sessionID, Level: level, At: at}
}

func Result(sessionID string, text string, final bool, at time.Time) Event {
	return Event{Kind: KindResult, SessionID: sessionID, Text: text, IsFinal: final, At: at}
}

func Error(sessionID string, code recognizer.ErrorCode, at time.Time) Event {
	class := recognizer.Classify(code)
	return Event{
		Kind:      KindError,
		SessionID: sessionID,
		Code:      code.String(),
		Class:     string(class),
		Fatal:     class.Fatal(),
		At:        at,
	}
}

func State(sessionID string, state string, at time.Time) Event {
	return Event{Kind: KindState, SessionID: sessionID, State: state, At: at}
}
