// Package recognizer defines the contract between the session controller and
// a single-utterance speech recognizer backend.
package recognizer

import (
	"context"
	"time"
)

// Timeouts bounds a single attempt. Zero values leave backend defaults.
type Timeouts struct {
	SpeechStart time.Duration
	SpeechEnd   time.Duration
}

// Params is the exact configuration of one recognition attempt. The session
// retains it so every retry reuses identical settings.
type Params struct {
	Locale            string
	DetectionLocales  []string
	LanguageDetection bool
	PartialResults    bool
	Punctuation       bool
	Timeouts          Timeouts
}

// Capabilities describes optional backend features.
type Capabilities struct {
	LanguageDetection bool
}

// Listener receives attempt callbacks. Implementations must tolerate calls
// from any goroutine, including after Destroy has been requested.
type Listener interface {
	OnReady()
	OnSpeechStart()
	OnSoundLevel(level float32)
	OnPartialResult(text string)
	OnFinalResult(text string)
	OnEndOfSpeech()
	OnError(code ErrorCode)
}

// Recognizer is one live backend instance. An attempt begins with
// StartListening and ends with a final result or an error callback.
type Recognizer interface {
	StartListening(ctx context.Context, params Params) error
	// StopListening ends the attempt gracefully; a pending final result may
	// still be delivered.
	StopListening() error
	// Cancel aborts the attempt and discards any in-flight result.
	Cancel() error
	Destroy() error
}

// Factory creates recognizer instances bound to a listener.
type Factory interface {
	Capabilities() Capabilities
	Create(listener Listener) (Recognizer, error)
}

// NopListener ignores every callback.
type NopListener struct{}

func (NopListener) OnReady()               {}
func (NopListener) OnSpeechStart()         {}
func (NopListener) OnSoundLevel(float32)   {}
func (NopListener) OnPartialResult(string) {}
func (NopListener) OnFinalResult(string)   {}
func (NopListener) OnEndOfSpeech()         {}
func (NopListener) OnError(ErrorCode)      {}
