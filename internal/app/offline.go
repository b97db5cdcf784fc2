package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbright/canto/internal/cli"
	"github.com/rbright/canto/internal/config"
	"github.com/rbright/canto/internal/offline"
)

// commandTranscribe runs one offline transcription in-process: it opens a
// context for the model, transcribes the file, and frees the context.
func (r Runner) commandTranscribe(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	if cfg.Offline.Server == "" {
		fmt.Fprintln(r.Stderr, "error: offline.server is not configured")
		return 1
	}

	svc, err := openOffline(cfg.Offline, logger, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = svc.Close() }()

	text, err := transcribeFile(ctx, svc, parsed.ModelPath, parsed.AudioPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("transcribe failed", "model", parsed.ModelPath, "audio", parsed.AudioPath, "error", err.Error())
		return 1
	}

	fmt.Fprintln(r.Stdout, text)
	return 0
}

func transcribeFile(ctx context.Context, svc *offline.Service, modelPath string, audioPath string) (string, error) {
	handle, err := svc.InitContext(ctx, modelPath)
	if err != nil {
		return "", err
	}

	text, err := svc.Transcribe(ctx, handle, audioPath)
	if freeErr := svc.FreeContext(ctx, handle); freeErr != nil && err == nil {
		err = freeErr
	}
	return text, err
}
