// Package gcloud adapts Google Cloud Speech-to-Text streaming recognition to
// the single-utterance recognizer contract.
package gcloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rbright/canto/internal/recognizer"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"
)

// maxAlternativeLanguages is the service limit on alternative_language_codes.
const maxAlternativeLanguages = 3

// Config selects the endpoint, credentials, and model for every attempt.
type Config struct {
	Endpoint        string
	CredentialsFile string
	Model           string
	SampleRate      int
	// OpenTimeout bounds stream setup and capture start for each attempt.
	OpenTimeout time.Duration
}

// Stream is the bidirectional RPC one attempt runs over.
type Stream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Capture is a live PCM source. Chunks closes after Stop.
type Capture interface {
	Chunks() <-chan []byte
	Stop() error
}

// Source opens a capture for one attempt. The capture must end when ctx is done.
type Source func(ctx context.Context) (Capture, error)

// Opener opens a streaming RPC bound to ctx.
type Opener func(ctx context.Context) (Stream, error)

// Factory creates recognizers sharing one speech client.
type Factory struct {
	cfg    Config
	open   Opener
	source Source
	logger *slog.Logger
	close  func() error
}

// NewFactory dials the speech service. Audio for each attempt comes from source.
func NewFactory(ctx context.Context, cfg Config, source Source, logger *slog.Logger) (*Factory, error) {
	var opts []option.ClientOption
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if creds := strings.TrimSpace(cfg.CredentialsFile); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	f := newFactory(cfg, func(ctx context.Context) (Stream, error) {
		return client.StreamingRecognize(ctx)
	}, source, logger)
	f.close = client.Close
	return f, nil
}

func newFactory(cfg Config, open Opener, source Source, logger *slog.Logger) *Factory {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Factory{cfg: cfg, open: open, source: source, logger: logger}
}

// Capabilities reports alternative-language detection support.
func (f *Factory) Capabilities() recognizer.Capabilities {
	return recognizer.Capabilities{LanguageDetection: true}
}

func (f *Factory) Create(listener recognizer.Listener) (recognizer.Recognizer, error) {
	if listener == nil {
		return nil, errors.New("listener is required")
	}
	if f.source == nil {
		return nil, errors.New("audio source is not configured")
	}
	return &Recognizer{factory: f, listener: listener}, nil
}

// Close releases the shared speech client.
func (f *Factory) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

// configRequest is the first message of every stream.
func configRequest(cfg Config, params recognizer.Params) *speechpb.StreamingRecognizeRequest {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(cfg.SampleRate),
		AudioChannelCount:          1,
		LanguageCode:               params.Locale,
		EnableAutomaticPunctuation: params.Punctuation,
		Model:                      strings.TrimSpace(cfg.Model),
	}
	if params.LanguageDetection {
		rc.AlternativeLanguageCodes = alternativeLanguages(params.Locale, params.DetectionLocales)
	}

	sc := &speechpb.StreamingRecognitionConfig{
		Config:                    rc,
		SingleUtterance:           true,
		InterimResults:            params.PartialResults,
		EnableVoiceActivityEvents: true,
	}
	if t := params.Timeouts; t.SpeechStart > 0 || t.SpeechEnd > 0 {
		sc.VoiceActivityTimeout = &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{}
		if t.SpeechStart > 0 {
			sc.VoiceActivityTimeout.SpeechStartTimeout = durationpb.New(t.SpeechStart)
		}
		if t.SpeechEnd > 0 {
			sc.VoiceActivityTimeout.SpeechEndTimeout = durationpb.New(t.SpeechEnd)
		}
	}

	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{StreamingConfig: sc},
	}
}

func alternativeLanguages(primary string, locales []string) []string {
	out := make([]string, 0, maxAlternativeLanguages)
	for _, locale := range locales {
		if strings.EqualFold(locale, primary) {
			continue
		}
		out = append(out, locale)
		if len(out) == maxAlternativeLanguages {
			break
		}
	}
	return out
}
