package recognizer

import (
	"fmt"
	"time"
)

// ErrorCode is a numeric backend error, numbered after the platform
// recognizer codes hosts already understand.
type ErrorCode int

const (
	ErrNetworkTimeout       ErrorCode = 1
	ErrNetwork              ErrorCode = 2
	ErrAudio                ErrorCode = 3
	ErrServer               ErrorCode = 4
	ErrClient               ErrorCode = 5
	ErrSpeechTimeout        ErrorCode = 6
	ErrNoMatch              ErrorCode = 7
	ErrRecognizerBusy       ErrorCode = 8
	ErrInsufficientPerms    ErrorCode = 9
	ErrTooManyRequests      ErrorCode = 10
	ErrServerDisconnected   ErrorCode = 11
	ErrLanguageNotSupported ErrorCode = 12
	ErrLanguageUnavailable  ErrorCode = 13
)

var codeNames = map[ErrorCode]string{
	ErrNetworkTimeout:       "network_timeout",
	ErrNetwork:              "network",
	ErrAudio:                "audio",
	ErrServer:               "server",
	ErrClient:               "client",
	ErrSpeechTimeout:        "speech_timeout",
	ErrNoMatch:              "no_match",
	ErrRecognizerBusy:       "recognizer_busy",
	ErrInsufficientPerms:    "insufficient_permissions",
	ErrTooManyRequests:      "too_many_requests",
	ErrServerDisconnected:   "server_disconnected",
	ErrLanguageNotSupported: "language_not_supported",
	ErrLanguageUnavailable:  "language_unavailable",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error_%d", int(c))
}

// Class groups error codes by recovery policy.
type Class string

const (
	ClassPermissionDenied   Class = "permission_denied"
	ClassNoSpeech           Class = "no_speech"
	ClassServerDisconnected Class = "server_disconnected"
	ClassOther              Class = "other"
)

func Classify(code ErrorCode) Class {
	switch code {
	case ErrInsufficientPerms:
		return ClassPermissionDenied
	case ErrSpeechTimeout, ErrNoMatch:
		return ClassNoSpeech
	case ErrServerDisconnected:
		return ClassServerDisconnected
	default:
		return ClassOther
	}
}

// Fatal reports whether the class ends the session.
func (c Class) Fatal() bool {
	return c == ClassPermissionDenied
}

// Delays maps recoverable classes to their restart delay.
type Delays struct {
	NoSpeech           time.Duration
	ServerDisconnected time.Duration
	Other              time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		NoSpeech:           300 * time.Millisecond,
		ServerDisconnected: 1000 * time.Millisecond,
		Other:              500 * time.Millisecond,
	}
}

// For returns the restart delay for class. Fatal classes return zero.
func (d Delays) For(class Class) time.Duration {
	switch class {
	case ClassNoSpeech:
		return d.NoSpeech
	case ClassServerDisconnected:
		return d.ServerDisconnected
	case ClassPermissionDenied:
		return 0
	default:
		return d.Other
	}
}
