// Package whisperserver implements an offline engine on top of a running
// whisper.cpp HTTP server.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rbright/canto/internal/offline"
)

const (
	engineVersion  = "whisper.cpp"
	maxErrorBody   = 4096
	defaultTimeout = 2 * time.Minute
)

// Engine talks to one whisper.cpp server. The server holds a single model,
// so contexts bound to different models reload it on demand.
type Engine struct {
	baseURL  string
	language string
	client   *http.Client

	mu      sync.Mutex
	current string
}

type Options struct {
	Language string
	Timeout  time.Duration
	Client   *http.Client
}

func New(baseURL string, opts Options) (*Engine, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("whisper server URL is required")
	}
	if opts.Language == "" {
		opts.Language = "auto"
	}
	if opts.Client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		opts.Client = &http.Client{Timeout: timeout}
	}
	return &Engine{baseURL: baseURL, language: opts.Language, client: opts.Client}, nil
}

func (e *Engine) Version(context.Context) (string, error) {
	return engineVersion, nil
}

// Health probes the server's health endpoint.
func (e *Engine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Load makes modelPath the server's active model.
func (e *Engine) Load(ctx context.Context, modelPath string) (offline.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadLocked(ctx, modelPath); err != nil {
		return nil, err
	}
	return &model{engine: e, path: modelPath}, nil
}

func (e *Engine) loadLocked(ctx context.Context, modelPath string) error {
	if e.current == modelPath {
		return nil
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("model", modelPath); err != nil {
		return fmt.Errorf("write model field: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	if err := e.post(ctx, "/load", form.FormDataContentType(), &body, nil); err != nil {
		return fmt.Errorf("load model %s: %w", modelPath, err)
	}
	e.current = modelPath
	return nil
}

type model struct {
	engine *Engine
	path   string
}

// Transcribe uploads the samples as a 16-bit mono WAV and returns the
// server's concatenated segment text.
func (m *model) Transcribe(ctx context.Context, a offline.Audio) (string, error) {
	wavBytes, err := encodeWAV(a)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	_ = form.WriteField("response_format", "json")
	_ = form.WriteField("language", m.engine.language)
	_ = form.WriteField("temperature", "0")
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadLocked(ctx, m.path); err != nil {
		return "", err
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := e.post(ctx, "/inference", form.FormDataContentType(), &body, &resp); err != nil {
		return "", fmt.Errorf("inference: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (m *model) Close() error { return nil }

func (e *Engine) post(ctx context.Context, path string, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("whisper server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

// encodeWAV renders mono float samples as a 16-bit PCM WAV. The encoder needs
// a seekable writer, so it goes through a temporary file.
func encodeWAV(a offline.Audio) ([]byte, error) {
	f, err := os.CreateTemp("", "canto-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	rate := a.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, len(a.Samples)),
		SourceBitDepth: 16,
	}
	for i, s := range a.Samples {
		v := int(s * 32768)
		buf.Data[i] = max(-32768, min(32767, v))
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finish wav: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}
