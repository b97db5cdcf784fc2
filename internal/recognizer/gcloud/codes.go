package gcloud

import (
	"context"
	"errors"
	"strings"

	"github.com/rbright/canto/internal/recognizer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeFromError maps an RPC failure onto the recognizer error codes.
func codeFromError(err error) recognizer.ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return recognizer.ErrNetworkTimeout
	case errors.Is(err, context.Canceled):
		return recognizer.ErrClient
	}
	st, ok := status.FromError(err)
	if !ok {
		return recognizer.ErrNetwork
	}
	return codeFromStatus(int32(st.Code()), st.Message())
}

func codeFromStatus(code int32, message string) recognizer.ErrorCode {
	switch codes.Code(code) {
	case codes.DeadlineExceeded:
		return recognizer.ErrNetworkTimeout
	case codes.Unavailable:
		return recognizer.ErrServerDisconnected
	case codes.PermissionDenied, codes.Unauthenticated:
		return recognizer.ErrInsufficientPerms
	case codes.ResourceExhausted:
		return recognizer.ErrTooManyRequests
	case codes.OutOfRange:
		// Stream duration and audio timeout limits.
		return recognizer.ErrSpeechTimeout
	case codes.Aborted:
		return recognizer.ErrRecognizerBusy
	case codes.Canceled:
		return recognizer.ErrClient
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(message), "language") {
			return recognizer.ErrLanguageNotSupported
		}
		return recognizer.ErrClient
	default:
		return recognizer.ErrServer
	}
}
