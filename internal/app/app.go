package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/canto/internal/audio"
	"github.com/rbright/canto/internal/cli"
	"github.com/rbright/canto/internal/config"
	"github.com/rbright/canto/internal/doctor"
	"github.com/rbright/canto/internal/ipc"
	"github.com/rbright/canto/internal/logging"
	"github.com/rbright/canto/internal/version"
)

const (
	forwardTimeout = 220 * time.Millisecond
	// startTimeout covers recognizer creation on the daemon side.
	startTimeout = 10 * time.Second
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("canto"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("canto"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, cfgErr := config.Load(parsed.ConfigPath)

	logOpts := logging.Options{}
	if cfgErr == nil {
		logOpts = logging.Options{
			Level:      cfgLoaded.Config.Log.Level,
			MaxSizeMB:  cfgLoaded.Config.Log.MaxSizeMB,
			MaxBackups: cfgLoaded.Config.Log.MaxBackups,
			MaxAgeDays: cfgLoaded.Config.Log.MaxAgeDays,
		}
	}
	logRuntime, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()
	if level := strings.TrimSpace(os.Getenv("CANTO_LOG_LEVEL")); level != "" {
		if err := logRuntime.SetLevel(level); err != nil {
			fmt.Fprintf(r.Stderr, "warning: CANTO_LOG_LEVEL: %v\n", err)
		}
	}

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	if cfgErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", cfgErr)
		logger.Error("load config failed", "error", cfgErr.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandListen:
		return r.commandListen(ctx, parsed, cfgLoaded.Config, logger)
	case cli.CommandStart, cli.CommandToggle:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command), Locales: parsed.Locales}, startTimeout)
	case cli.CommandStop, cli.CommandCancel, cli.CommandReset:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command)}, forwardTimeout)
	case cli.CommandEvents:
		return r.commandEvents(ctx)
	case cli.CommandTranscribe:
		return r.commandTranscribe(ctx, parsed, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		if resp.SessionID != "" {
			fmt.Fprintf(r.Stdout, "%s %s\n", resp.State, resp.SessionID)
			return 0
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request, timeout time.Duration) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req, timeout)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: canto daemon is not running (start it with `canto listen`)\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandEvents(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	err = ipc.Subscribe(ctx, socketPath, ipc.Request{Command: ipc.CommandEvents}, forwardTimeout, func(line json.RawMessage) error {
		_, werr := r.Stdout.Write(line)
		return werr
	})
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			fmt.Fprintf(r.Stderr, "error: canto daemon is not running (start it with `canto listen`)\n")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// tryForward sends req to a running daemon. handled is false when no daemon
// owns the socket.
func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		if resp.Code != "" {
			return resp, true, fmt.Errorf("%s (%s)", resp.Error, resp.Code)
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
