package offline

import (
	"context"
	"fmt"

	"github.com/rbright/canto/internal/ipc"
)

// Handle serves offline context IPC commands.
func (s *Service) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandInit:
		handle, err := s.InitContext(ctx, req.ModelPath)
		if err != nil {
			return errorResponse(err)
		}
		return ipc.Response{OK: true, Context: uint64(handle), Message: "context initialized"}
	case ipc.CommandTranscribe:
		text, err := s.Transcribe(ctx, Handle(req.Context), req.AudioPath)
		if err != nil {
			return errorResponse(err)
		}
		return ipc.Response{OK: true, Context: req.Context, Text: text}
	case ipc.CommandFree:
		if err := s.FreeContext(ctx, Handle(req.Context)); err != nil {
			return errorResponse(err)
		}
		return ipc.Response{OK: true, Context: req.Context, Message: "context freed"}
	case ipc.CommandVersion:
		version, err := s.Version(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return ipc.Response{OK: true, Text: version}
	default:
		return ipc.Response{OK: false, Code: ipc.CodeUnknownCommand, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func errorResponse(err error) ipc.Response {
	return ipc.Response{OK: false, Code: string(KindOf(err)), Error: err.Error()}
}
