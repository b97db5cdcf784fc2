// Package offline manages transcription contexts backed by an offline speech
// engine. Blocking engine calls run on a worker pool and are joined back
// before each operation returns.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
)

// Handle identifies a loaded context. The zero handle is never issued.
type Handle uint64

// Model is one loaded engine context. Calls on a Model are serialized.
type Model interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
	Close() error
}

// Engine loads models and reports its version.
type Engine interface {
	Version(ctx context.Context) (string, error)
	Load(ctx context.Context, modelPath string) (Model, error)
}

// Observer records offline operation outcomes. kind is empty on success.
type Observer interface {
	OfflineOp(op string, elapsed time.Duration, kind string)
}

type noopObserver struct{}

func (noopObserver) OfflineOp(string, time.Duration, string) {}

type Options struct {
	Workers  int
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer Observer
}

// process-wide open state; one engine binding per process.
var (
	openMu sync.Mutex
	isOpen bool
)

type entry struct {
	mu        sync.Mutex
	model     Model
	modelPath string
}

// Service owns the loaded contexts and the worker pool.
type Service struct {
	engine   Engine
	logger   *slog.Logger
	observer Observer
	timeout  time.Duration
	pool     *workerpool.WorkerPool

	mu       sync.RWMutex
	closed   bool
	next     Handle
	contexts map[Handle]*entry
}

// Open initializes the process-wide service. It fails with ErrAlreadyOpen
// until the previous service is closed.
func Open(engine Engine, opts Options) (*Service, error) {
	if engine == nil {
		return nil, errors.New("offline engine is required")
	}

	openMu.Lock()
	defer openMu.Unlock()
	if isOpen {
		return nil, ErrAlreadyOpen
	}

	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	isOpen = true
	return &Service{
		engine:   engine,
		logger:   opts.Logger,
		observer: opts.Observer,
		timeout:  opts.Timeout,
		pool:     workerpool.New(opts.Workers),
		contexts: make(map[Handle]*entry),
	}, nil
}

// Close frees every outstanding context, stops the worker pool, and releases
// the process-wide slot.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	contexts := s.contexts
	s.contexts = make(map[Handle]*entry)
	s.mu.Unlock()

	s.pool.StopWait()

	var errs []error
	for handle, e := range contexts {
		e.mu.Lock()
		if err := e.model.Close(); err != nil {
			errs = append(errs, err)
			s.logger.Warn("free offline context on close failed", "context", uint64(handle), "error", err.Error())
		}
		e.mu.Unlock()
	}

	openMu.Lock()
	isOpen = false
	openMu.Unlock()

	return errors.Join(errs...)
}

// InitContext loads modelPath and returns a handle to the new context.
func (s *Service) InitContext(ctx context.Context, modelPath string) (Handle, error) {
	if strings.TrimSpace(modelPath) == "" {
		return 0, s.observe("init", time.Now(), invalidArgument("model path is required"))
	}

	var model Model
	err := s.run(ctx, "init", KindInit, func(ctx context.Context) error {
		m, err := s.engine.Load(ctx, modelPath)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			_ = m.Close()
			return ctx.Err()
		}
		model = m
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = model.Close()
		return 0, &Error{Kind: KindClosed, Err: ErrClosed}
	}
	s.next++
	handle := s.next
	s.contexts[handle] = &entry{model: model, modelPath: modelPath}
	s.logger.Info("offline context initialized", "context", uint64(handle), "model", modelPath)
	return handle, nil
}

// Transcribe decodes the WAV file at audioPath and runs it through the
// context's model.
func (s *Service) Transcribe(ctx context.Context, handle Handle, audioPath string) (string, error) {
	if handle == 0 || strings.TrimSpace(audioPath) == "" {
		return "", s.observe("transcribe", time.Now(), invalidArgument("context and audio path are required"))
	}
	e, err := s.lookup(handle)
	if err != nil {
		return "", s.observe("transcribe", time.Now(), err)
	}

	var text string
	err = s.run(ctx, "transcribe", KindTranscribe, func(ctx context.Context) error {
		audio, err := ReadWAV(audioPath)
		if err != nil {
			return err
		}
		if len(audio.Samples) == 0 {
			return nil
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		out, err := e.model.Transcribe(ctx, audio)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	return text, err
}

// FreeContext releases the context. The handle is invalid afterwards.
func (s *Service) FreeContext(ctx context.Context, handle Handle) error {
	if handle == 0 {
		return s.observe("free", time.Now(), invalidArgument("context is required"))
	}

	s.mu.Lock()
	e, ok := s.contexts[handle]
	if ok {
		delete(s.contexts, handle)
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return s.observe("free", time.Now(), &Error{Kind: KindClosed, Err: ErrClosed})
	}
	if !ok {
		return s.observe("free", time.Now(), unknownContext(handle))
	}

	return s.run(ctx, "free", KindFree, func(context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.model.Close()
	})
}

// Version reports the engine version string.
func (s *Service) Version(ctx context.Context) (string, error) {
	var version string
	err := s.run(ctx, "version", KindVersion, func(ctx context.Context) error {
		v, err := s.engine.Version(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	return version, err
}

// Contexts reports the number of live contexts.
func (s *Service) Contexts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

func (s *Service) lookup(handle Handle) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &Error{Kind: KindClosed, Err: ErrClosed}
	}
	e, ok := s.contexts[handle]
	if !ok {
		return nil, unknownContext(handle)
	}
	return e, nil
}

// run executes fn on the worker pool and waits for it or for ctx. Failures
// are tagged with kind.
func (s *Service) run(ctx context.Context, op string, kind Kind, fn func(context.Context) error) error {
	started := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return s.observe(op, started, &Error{Kind: KindClosed, Err: ErrClosed})
	}
	s.pool.Submit(func() { done <- fn(ctx) })
	s.mu.RUnlock()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil && KindOf(err) == "" {
		err = &Error{Kind: kind, Err: err}
	}
	return s.observe(op, started, err)
}

func (s *Service) observe(op string, started time.Time, err error) error {
	kind := string(KindOf(err))
	s.observer.OfflineOp(op, time.Since(started), kind)
	if err != nil {
		s.logger.Warn("offline operation failed", "op", op, "kind", kind, "error", err.Error())
	}
	return err
}

func unknownContext(handle Handle) error {
	return &Error{Kind: KindUnknownContext, Err: fmt.Errorf("unknown context %d", handle)}
}
