// Package logging configures runtime JSONL logging output with size-based
// rotation.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/DeRuina/timberjack"
)

// Options controls level and rotation. Zero rotation values keep the
// rotating writer's defaults.
type Options struct {
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Runtime bundles the configured logger, its level, and the rotating file.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	Level  *slog.LevelVar
	file   *timberjack.Logger
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// New builds a JSONL logger rooted at the resolved state path.
func New(opts Options) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	level := new(slog.LevelVar)
	if err := setLevel(level, opts.Level); err != nil {
		return Runtime{}, err
	}

	file := &timberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}

	h := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return Runtime{Logger: slog.New(h), Path: path, Level: level, file: file}, nil
}

// SetLevel changes the minimum level of an existing runtime.
func (r Runtime) SetLevel(name string) error {
	return setLevel(r.Level, name)
}

func setLevel(level *slog.LevelVar, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		level.Set(slog.LevelInfo)
		return nil
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.Set(parsed)
	return nil
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "canto", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "canto", "log.jsonl"), nil
}
