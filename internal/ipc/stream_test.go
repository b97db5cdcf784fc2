package ipc

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type streamHandler struct {
	HandlerFunc
	streams atomic.Int32
}

func (h *streamHandler) Stream(ctx context.Context, _ Request, emit func(any) error) error {
	h.streams.Add(1)
	for i := 0; i < 3; i++ {
		if err := emit(map[string]int{"seq": i}); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func TestSubscribeReceivesStreamedLines(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "canto.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &streamHandler{HandlerFunc: func(context.Context, Request) Response {
		return Response{OK: true}
	}}
	serveDone := make(chan error, 1)
	go func() { serveDone <- Serve(ctx, listener, handler) }()

	subCtx, subCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer subCancel()

	var seqs []int
	err = Subscribe(subCtx, socketPath, Request{Command: CommandEvents}, 200*time.Millisecond, func(line json.RawMessage) error {
		var payload map[string]int
		require.NoError(t, json.Unmarshal(line, &payload))
		seqs = append(seqs, payload["seq"])
		if len(seqs) == 3 {
			subCancel()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, seqs)
	require.Equal(t, int32(1), handler.streams.Load())

	cancel()
	require.NoError(t, <-serveDone)
}

func TestServeEventsWithoutStreamerFallsBackToHandle(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "canto.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			return Response{OK: false, Code: CodeUnknownCommand, Error: "unknown command: " + req.Command}
		}))
	}()

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandEvents}, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, CodeUnknownCommand, resp.Code)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestRequestCarriesSessionAndOfflineFields(t *testing.T) {
	raw, err := json.Marshal(Request{Command: CommandStart, Locales: []string{"en-US", "es-ES"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"start","locales":["en-US","es-ES"]}`, string(raw))

	raw, err = json.Marshal(Request{Command: CommandTranscribe, Context: 7, AudioPath: "/tmp/a.wav"})
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"transcribe","context":7,"audio_path":"/tmp/a.wav"}`, string(raw))
}
