package session

import (
	"context"
	"testing"

	"github.com/rbright/canto/internal/fsm"
	"github.com/rbright/canto/internal/ipc"
	"github.com/rbright/canto/internal/recognizer"
	"github.com/stretchr/testify/require"
)

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	h := newHarness(t, recognizer.Capabilities{}, nil)

	status := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)

	unknown := h.ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Equal(t, ipc.CodeUnknownCommand, unknown.Code)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestHandleStartRequiresLocales(t *testing.T) {
	h := newHarness(t, recognizer.Capabilities{}, nil)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStart})
	require.False(t, resp.OK)
	require.Equal(t, ipc.CodeInvalidArgument, resp.Code)
	require.Equal(t, string(fsm.StateIdle), resp.State)

	resp = h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStart, Locales: []string{" "}})
	require.False(t, resp.OK)
	require.Equal(t, ipc.CodeInvalidArgument, resp.Code)
}

func TestHandleStartStopCancelLifecycle(t *testing.T) {
	h := newHarness(t, recognizer.Capabilities{}, nil)

	start := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStart, Locales: []string{"en-US"}})
	require.True(t, start.OK, start.Error)
	require.Equal(t, string(fsm.StateListening), start.State)
	require.NotEmpty(t, start.SessionID)

	again := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStart, Locales: []string{"en-US"}})
	require.False(t, again.OK)
	require.Equal(t, ipc.CodeAlreadyListening, again.Code)

	stop := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.True(t, stop.OK)
	require.Equal(t, string(fsm.StateIdle), stop.State)

	cancel := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandCancel})
	require.True(t, cancel.OK)
	require.Equal(t, int32(1), h.factory.last().destroyCalls.Load())
}

func TestHandleToggleUsesDefaultLocales(t *testing.T) {
	h := newHarness(t, recognizer.Capabilities{}, func(o *Options) {
		o.Locales = []string{"de-DE"}
	})

	on := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})
	require.True(t, on.OK, on.Error)
	require.Equal(t, string(fsm.StateListening), on.State)
	require.Equal(t, "de-DE", h.factory.last().attempts()[0].Locale)

	off := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})
	require.True(t, off.OK)
	require.Equal(t, string(fsm.StateIdle), off.State)
}

func TestHandleResetRequiredAfterPermissionFailure(t *testing.T) {
	h := newHarness(t, recognizer.Capabilities{}, nil)
	h.start("en-US")
	h.factory.last().listener.OnError(recognizer.ErrInsufficientPerms)
	h.sync()

	start := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStart, Locales: []string{"en-US"}})
	require.False(t, start.OK)
	require.Equal(t, ipc.CodeResetRequired, start.Code)
	require.Equal(t, string(fsm.StateFailed), start.State)

	reset := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandReset})
	require.True(t, reset.OK)
	require.Equal(t, string(fsm.StateIdle), reset.State)
}
