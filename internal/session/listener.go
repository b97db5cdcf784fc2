package session

import (
	"sync"

	"github.com/rbright/canto/internal/recognizer"
)

type message any

type startMsg struct {
	locales []string
	reply   chan error
}

type stopMsg struct{ reply chan error }

type cancelMsg struct{ reply chan error }

type resetMsg struct{ reply chan error }

type statusMsg struct{ reply chan Status }

type restartMsg struct{ token uint64 }

type callbackKind string

const (
	callbackReady       callbackKind = "ready"
	callbackSpeechStart callbackKind = "speech_start"
	callbackSoundLevel  callbackKind = "sound_level"
	callbackPartial     callbackKind = "partial"
	callbackFinal       callbackKind = "final"
	callbackEndOfSpeech callbackKind = "end_of_speech"
	callbackError       callbackKind = "error"
)

type callbackMsg struct {
	gen   uint64
	kind  callbackKind
	text  string
	level float32
	code  recognizer.ErrorCode
}

// attemptListener marshals recognizer callbacks for one instance into the
// owner mailbox, tagged with the instance generation.
type attemptListener struct {
	c    *Controller
	gen  uint64
	dead chan struct{}
	once sync.Once
}

func newAttemptListener(c *Controller, gen uint64) *attemptListener {
	return &attemptListener{c: c, gen: gen, dead: make(chan struct{})}
}

// kill drops every later callback from this instance at the source.
func (l *attemptListener) kill() {
	l.once.Do(func() { close(l.dead) })
}

func (l *attemptListener) deliver(msg callbackMsg) {
	msg.gen = l.gen
	select {
	case <-l.dead:
		return
	default:
	}
	select {
	case l.c.mailbox <- msg:
	case <-l.dead:
	case <-l.c.done:
	}
}

func (l *attemptListener) OnReady() { l.deliver(callbackMsg{kind: callbackReady}) }

func (l *attemptListener) OnSpeechStart() { l.deliver(callbackMsg{kind: callbackSpeechStart}) }

// OnSoundLevel never blocks; levels are dropped while the mailbox is full.
func (l *attemptListener) OnSoundLevel(level float32) {
	select {
	case <-l.dead:
		return
	default:
	}
	select {
	case l.c.mailbox <- callbackMsg{gen: l.gen, kind: callbackSoundLevel, level: level}:
	default:
	}
}

func (l *attemptListener) OnPartialResult(text string) {
	l.deliver(callbackMsg{kind: callbackPartial, text: text})
}

func (l *attemptListener) OnFinalResult(text string) {
	l.deliver(callbackMsg{kind: callbackFinal, text: text})
}

func (l *attemptListener) OnEndOfSpeech() { l.deliver(callbackMsg{kind: callbackEndOfSpeech}) }

func (l *attemptListener) OnError(code recognizer.ErrorCode) {
	l.deliver(callbackMsg{kind: callbackError, code: code})
}
