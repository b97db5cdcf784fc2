package offline

import (
	"errors"
	"fmt"
)

// Kind is a stable error tag reported to callers alongside the message.
type Kind string

const (
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindInit            Kind = "INIT_ERROR"
	KindTranscribe      Kind = "TRANSCRIBE_ERROR"
	KindFree            Kind = "FREE_ERROR"
	KindVersion         Kind = "VERSION_ERROR"
	KindUnknownContext  Kind = "UNKNOWN_CONTEXT"
	KindClosed          Kind = "CLOSED"
)

var (
	ErrAlreadyOpen = errors.New("offline service already open")
	ErrClosed      = errors.New("offline service closed")
)

// Error is an offline operation failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInit:
		return fmt.Sprintf("Failed to initialize: %v", e.Err)
	case KindTranscribe:
		return fmt.Sprintf("Failed to transcribe: %v", e.Err)
	case KindFree:
		return fmt.Sprintf("Failed to free context: %v", e.Err)
	case KindVersion:
		return fmt.Sprintf("Failed to get version: %v", e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the tag of err, or the empty kind when err is not an *Error.
func KindOf(err error) Kind {
	var offlineErr *Error
	if errors.As(err, &offlineErr) {
		return offlineErr.Kind
	}
	return ""
}

func invalidArgument(message string) error {
	return &Error{Kind: KindInvalidArgument, Err: errors.New(message)}
}
