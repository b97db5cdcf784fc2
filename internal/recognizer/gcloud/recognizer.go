package gcloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rbright/canto/internal/audio"
	"github.com/rbright/canto/internal/recognizer"
)

var (
	errDestroyed = errors.New("recognizer destroyed")
	errBusy      = errors.New("recognition attempt already running")
)

// Recognizer runs one streaming RPC per attempt.
type Recognizer struct {
	factory  *Factory
	listener recognizer.Listener

	mu        sync.Mutex
	current   *attempt
	destroyed bool
}

func (r *Recognizer) StartListening(ctx context.Context, params recognizer.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return errDestroyed
	}
	if r.current != nil {
		return errBusy
	}

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		owner:    r,
		listener: r.listener,
		partials: params.PartialResults,
		cancel:   cancel,
	}
	r.current = a
	r.factory.logger.Debug("speech attempt started", "locale", params.Locale, "detection", params.LanguageDetection)

	go a.run(actx, params)
	return nil
}

// StopListening stops capture; the service then returns its final result.
// A stop issued while the attempt is still opening applies once capture starts.
func (r *Recognizer) StopListening() error {
	r.mu.Lock()
	a := r.current
	r.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.stop()
}

// Cancel aborts the running attempt without any further callbacks.
func (r *Recognizer) Cancel() error {
	r.mu.Lock()
	a := r.current
	r.current = nil
	r.mu.Unlock()
	if a != nil {
		a.abort()
	}
	return nil
}

func (r *Recognizer) Destroy() error {
	r.mu.Lock()
	r.destroyed = true
	a := r.current
	r.current = nil
	r.mu.Unlock()
	if a != nil {
		a.abort()
	}
	return nil
}

// release clears a finished attempt so the next StartListening can run.
func (r *Recognizer) release(a *attempt) {
	r.mu.Lock()
	if r.current == a {
		r.current = nil
	}
	r.mu.Unlock()
}

type attempt struct {
	owner    *Recognizer
	listener recognizer.Listener
	partials bool
	cancel   context.CancelFunc

	// set once by attach before pump and receive start
	stream  Stream
	capture Capture

	mu       sync.Mutex
	finished bool
	stopped  bool
}

// run opens the stream and the capture, then receives until the attempt
// ends. Open failures are reported through OnError.
func (a *attempt) run(ctx context.Context, params recognizer.Params) {
	defer a.cancel()

	stream, capture, code, err := a.open(ctx, params)
	if err != nil {
		if a.live() {
			a.owner.factory.logger.Warn("speech attempt open failed", "code", code.String(), "error", err.Error())
		}
		a.fail(code)
		return
	}
	if !a.attach(stream, capture) {
		_ = capture.Stop()
		return
	}

	go a.pump()
	a.receive()
}

// open is bounded by Config.OpenTimeout. Expiry cancels the attempt context
// and reports a network timeout.
func (a *attempt) open(ctx context.Context, params recognizer.Params) (Stream, Capture, recognizer.ErrorCode, error) {
	f := a.owner.factory
	var timer *time.Timer
	if f.cfg.OpenTimeout > 0 {
		timer = time.AfterFunc(f.cfg.OpenTimeout, a.cancel)
	}
	expired := func() bool { return timer != nil && !timer.Stop() }

	stream, err := f.open(ctx)
	if err != nil {
		if expired() {
			return nil, nil, recognizer.ErrNetworkTimeout, fmt.Errorf("open streaming recognize: %w", context.DeadlineExceeded)
		}
		return nil, nil, codeFromError(err), fmt.Errorf("open streaming recognize: %w", err)
	}
	if err := stream.Send(configRequest(f.cfg, params)); err != nil {
		if expired() {
			return nil, nil, recognizer.ErrNetworkTimeout, fmt.Errorf("send streaming config: %w", context.DeadlineExceeded)
		}
		return nil, nil, codeFromError(err), fmt.Errorf("send streaming config: %w", err)
	}
	capture, err := f.source(ctx)
	if err != nil {
		if expired() {
			return nil, nil, recognizer.ErrNetworkTimeout, fmt.Errorf("open audio capture: %w", context.DeadlineExceeded)
		}
		return nil, nil, recognizer.ErrAudio, fmt.Errorf("open audio capture: %w", err)
	}
	if expired() {
		_ = capture.Stop()
		return nil, nil, recognizer.ErrNetworkTimeout, fmt.Errorf("open speech attempt: %w", context.DeadlineExceeded)
	}
	return stream, capture, 0, nil
}

// attach publishes the opened stream and capture. It reports false when the
// attempt was aborted while opening.
func (a *attempt) attach(stream Stream, capture Capture) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return false
	}
	a.stream = stream
	a.capture = capture
	if a.stopped {
		_ = capture.Stop()
	}
	return true
}

func (a *attempt) stop() error {
	a.mu.Lock()
	a.stopped = true
	capture := a.capture
	a.mu.Unlock()
	if capture == nil {
		return nil
	}
	return capture.Stop()
}

// pump forwards captured audio until the capture closes, then half-closes
// the stream.
func (a *attempt) pump() {
	for chunk := range a.capture.Chunks() {
		if !a.live() {
			continue
		}
		a.listener.OnSoundLevel(audio.Level(chunk))
		err := a.stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
		})
		if err != nil {
			_ = a.capture.Stop()
		}
	}
	_ = a.stream.CloseSend()
}

func (a *attempt) receive() {
	defer func() { _ = a.capture.Stop() }()

	a.emit(a.listener.OnReady)
	for {
		resp, err := a.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.fail(recognizer.ErrNoMatch)
			} else {
				a.fail(codeFromError(err))
			}
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			a.fail(codeFromStatus(st.GetCode(), st.GetMessage()))
			return
		}

		switch resp.GetSpeechEventType() {
		case speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_BEGIN:
			a.emit(a.listener.OnSpeechStart)
		case speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_END,
			speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE:
			a.emit(a.listener.OnEndOfSpeech)
			_ = a.capture.Stop()
		case speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_TIMEOUT:
			a.fail(recognizer.ErrSpeechTimeout)
			return
		}

		final, interim, ok := transcripts(resp.GetResults())
		if ok {
			a.finish(final)
			return
		}
		if a.partials && interim != "" {
			a.emit(func() { a.listener.OnPartialResult(interim) })
		}
	}
}

func (a *attempt) live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.finished
}

func (a *attempt) emit(fn func()) {
	if a.live() {
		fn()
	}
}

// terminate marks the attempt finished and reports whether the caller owns
// the terminal callback.
func (a *attempt) terminate() bool {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return false
	}
	a.finished = true
	a.mu.Unlock()
	a.owner.release(a)
	return true
}

func (a *attempt) finish(text string) {
	if !a.terminate() {
		return
	}
	if text == "" {
		a.listener.OnError(recognizer.ErrNoMatch)
		return
	}
	a.listener.OnFinalResult(text)
}

func (a *attempt) fail(code recognizer.ErrorCode) {
	if a.terminate() {
		a.listener.OnError(code)
	}
}

// abort suppresses every later callback and tears the RPC down.
func (a *attempt) abort() {
	a.mu.Lock()
	a.finished = true
	capture := a.capture
	a.mu.Unlock()
	if capture != nil {
		_ = capture.Stop()
	}
	a.cancel()
}

// transcripts joins the top alternatives of a response. ok is set when a
// final result is present.
func transcripts(results []*speechpb.StreamingRecognitionResult) (final string, interim string, ok bool) {
	var finals, interims []string
	for _, result := range results {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		text := strings.Join(strings.Fields(alternatives[0].GetTranscript()), " ")
		if result.GetIsFinal() {
			ok = true
			if text != "" {
				finals = append(finals, text)
			}
			continue
		}
		if text != "" {
			interims = append(interims, text)
		}
	}
	return strings.Join(finals, " "), strings.Join(interims, " "), ok
}
