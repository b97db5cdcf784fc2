// Package pipeline wires the configured recognizer backend to live audio
// capture.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/canto/internal/audio"
	"github.com/rbright/canto/internal/config"
	"github.com/rbright/canto/internal/recognizer"
	"github.com/rbright/canto/internal/recognizer/gcloud"
	"github.com/rbright/canto/internal/recognizer/mock"
)

// Factory is a recognizer factory that owns backend resources.
type Factory interface {
	recognizer.Factory
	Close() error
}

// NewFactory builds the recognizer factory selected by cfg.Recognizer.Backend.
func NewFactory(ctx context.Context, cfg config.Config, logger *slog.Logger) (Factory, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Recognizer.Backend {
	case "mock":
		return mock.NewFactory(mock.Options{
			ErrorEvery:        cfg.Recognizer.MockErrorEvery,
			LanguageDetection: cfg.Recognizer.LanguageDetection,
		}), nil
	case "gcloud":
		openCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Recognizer.OpenTimeoutMS)*time.Millisecond)
		defer cancel()
		factory, err := gcloud.NewFactory(openCtx, gcloud.Config{
			Endpoint:        cfg.Recognizer.Endpoint,
			CredentialsFile: cfg.Recognizer.CredentialsFile,
			Model:           cfg.Recognizer.Model,
			SampleRate:      audio.SampleRate,
			OpenTimeout:     time.Duration(cfg.Recognizer.OpenTimeoutMS) * time.Millisecond,
		}, CaptureSource(cfg.Audio, logger), logger)
		if err != nil {
			return nil, err
		}
		if !cfg.Recognizer.LanguageDetection {
			return withoutDetection{factory}, nil
		}
		return factory, nil
	default:
		return nil, fmt.Errorf("unknown recognizer backend %q", cfg.Recognizer.Backend)
	}
}

// CaptureSource opens a pulse capture per attempt using the configured
// device preferences.
func CaptureSource(cfg config.AudioConfig, logger *slog.Logger) gcloud.Source {
	return func(ctx context.Context) (gcloud.Capture, error) {
		capture, warning, err := audio.Open(ctx, cfg.Input, cfg.Fallback)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			logger.Warn(warning)
		}
		device := capture.Device().ID
		logger.Debug("audio capture started", "device", device)
		return &loggedCapture{meteredCapture: capture, device: device, logger: logger}, nil
	}
}

type meteredCapture interface {
	gcloud.Capture
	BytesCaptured() int64
}

// loggedCapture logs the captured byte count once the capture stops.
type loggedCapture struct {
	meteredCapture
	device string
	logger *slog.Logger
	once   sync.Once
}

func (c *loggedCapture) Stop() error {
	err := c.meteredCapture.Stop()
	c.once.Do(func() {
		c.logger.Debug("audio capture stopped", "device", c.device, "bytes_captured", c.BytesCaptured())
	})
	return err
}

// RecognizerOptions maps config onto per-attempt recognizer options.
func RecognizerOptions(cfg config.RecognizerConfig) recognizer.Options {
	return recognizer.Options{
		PartialResults: cfg.PartialResults,
		Punctuation:    cfg.AutomaticPunctuation,
		Timeouts: recognizer.Timeouts{
			SpeechStart: time.Duration(cfg.SpeechStartTimeoutMS) * time.Millisecond,
			SpeechEnd:   time.Duration(cfg.SpeechEndTimeoutMS) * time.Millisecond,
		},
	}
}

// withoutDetection hides backend language detection when config disables it.
type withoutDetection struct {
	Factory
}

func (f withoutDetection) Capabilities() recognizer.Capabilities {
	caps := f.Factory.Capabilities()
	caps.LanguageDetection = false
	return caps
}
