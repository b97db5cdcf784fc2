package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rbright/canto/internal/event"
)

const commandQueueSize = 32

// Command pipes each final transcript to a command's stdin, one process per
// transcript. Transcripts queue in the background; a full queue drops.
type Command struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
	drops   DropCounter

	queue chan string
	once  sync.Once
	done  chan struct{}
}

// NewCommand starts the background runner. Close releases it.
func NewCommand(argv []string, timeout time.Duration, logger *slog.Logger, drops DropCounter) *Command {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Command{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger,
		drops:   dropsOrNoop(drops),
		queue:   make(chan string, commandQueueSize),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Command) Emit(ev event.Event) {
	if ev.Kind != event.KindResult || !ev.IsFinal || strings.TrimSpace(ev.Text) == "" {
		return
	}
	select {
	case c.queue <- ev.Text:
	default:
		c.drops.Dropped("command")
		c.logger.Warn("commit command queue full; transcript dropped")
	}
}

// Close stops accepting transcripts and waits for queued ones to finish.
func (c *Command) Close() error {
	c.once.Do(func() { close(c.queue) })
	<-c.done
	return nil
}

func (c *Command) run() {
	defer close(c.done)
	for text := range c.queue {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		if err := runCommandWithInput(ctx, c.argv, text); err != nil {
			c.logger.Error("commit command failed", "error", err.Error())
		}
		cancel()
	}
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
