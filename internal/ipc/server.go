package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Streamer serves long-lived subscriptions. Stream writes values with emit
// until ctx is done or emit fails. ctx is cancelled when the client
// disconnects.
type Streamer interface {
	Stream(ctx context.Context, req Request, emit func(any) error) error
}

// Serve accepts unix-socket clients until context cancellation or listener close.
// Handlers that also implement Streamer receive events requests.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	enc := json.NewEncoder(conn)
	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		_ = enc.Encode(Response{OK: false, Code: CodeInvalidArgument, Error: fmt.Sprintf("read request: %v", err)})
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		_ = enc.Encode(Response{OK: false, Code: CodeInvalidArgument, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		_ = enc.Encode(Response{OK: false, Code: CodeInvalidArgument, Error: "command is required"})
		return
	}

	streamer, ok := handler.(Streamer)
	if req.Command != CommandEvents || !ok {
		_ = enc.Encode(handler.Handle(ctx, req))
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, _ = io.Copy(io.Discard, reader)
		cancel()
	}()

	if err := streamer.Stream(connCtx, req, enc.Encode); err != nil && connCtx.Err() == nil {
		_ = enc.Encode(Response{OK: false, Error: fmt.Sprintf("stream: %v", err)})
	}
}
