package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/canto/internal/fsm"
	"github.com/rbright/canto/internal/ipc"
)

// Handle serves session IPC commands.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		if _, err := c.Snapshot(ctx); err != nil {
			return c.errorResponse(err)
		}
		return c.response("status")
	case ipc.CommandStart:
		locales := req.Locales
		if len(locales) == 0 {
			locales = c.defaultLocales
		}
		if len(locales) == 0 {
			return c.failure(ipc.CodeInvalidArgument, "locales are required")
		}
		if err := c.Start(ctx, locales); err != nil {
			return c.errorResponse(err)
		}
		return c.response("listening")
	case ipc.CommandStop:
		if err := c.Stop(ctx); err != nil {
			return c.errorResponse(err)
		}
		return c.response("stop requested")
	case ipc.CommandCancel:
		if err := c.Cancel(ctx); err != nil {
			return c.errorResponse(err)
		}
		return c.response("cancelled")
	case ipc.CommandReset:
		if err := c.Reset(ctx); err != nil {
			return c.errorResponse(err)
		}
		return c.response("reset")
	case ipc.CommandToggle:
		if fsm.Active(c.State()) {
			return c.Handle(ctx, ipc.Request{Command: ipc.CommandStop})
		}
		return c.Handle(ctx, ipc.Request{Command: ipc.CommandStart, Locales: req.Locales})
	default:
		return c.failure(ipc.CodeUnknownCommand, fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (c *Controller) response(message string) ipc.Response {
	status := c.Status()
	return ipc.Response{OK: true, State: string(status.State), SessionID: status.SessionID, Message: message}
}

func (c *Controller) failure(code string, message string) ipc.Response {
	status := c.Status()
	return ipc.Response{OK: false, State: string(status.State), SessionID: status.SessionID, Code: code, Error: message}
}

func (c *Controller) errorResponse(err error) ipc.Response {
	return c.failure(errorCode(err), err.Error())
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return ipc.CodeInvalidArgument
	case errors.Is(err, ErrAlreadyListening):
		return ipc.CodeAlreadyListening
	case errors.Is(err, ErrResetRequired):
		return ipc.CodeResetRequired
	case errors.Is(err, ErrNotRunning):
		return ipc.CodeUnavailable
	default:
		return ipc.CodeStartError
	}
}
