// Package mock provides a scripted recognizer that runs without cloud
// credentials. Each attempt plays the next utterance: ready, speech start,
// progressive partials with sound levels, end of speech, then a final.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rbright/canto/internal/recognizer"
)

// Utterance is one scripted attempt.
type Utterance struct {
	Partials []string
	Final    string
}

var DefaultUtterances = []Utterance{
	{Partials: []string{"turn", "turn on the", "turn on the kitchen"}, Final: "turn on the kitchen lights"},
	{Partials: []string{"what", "what time"}, Final: "what time is it"},
	{Partials: []string{"remind me", "remind me to call"}, Final: "remind me to call home at six"},
}

type Options struct {
	Utterances []Utterance
	// Step is the pause between scripted callbacks.
	Step time.Duration
	// ErrorEvery injects ErrorCode on every Nth attempt. Zero disables.
	ErrorEvery int
	ErrorCode  recognizer.ErrorCode
	// LanguageDetection is reported through Capabilities.
	LanguageDetection bool
}

// Factory hands out recognizers that share one utterance cursor.
type Factory struct {
	opts Options

	mu       sync.Mutex
	attempts int
}

func NewFactory(opts Options) *Factory {
	if len(opts.Utterances) == 0 {
		opts.Utterances = DefaultUtterances
	}
	if opts.Step <= 0 {
		opts.Step = 150 * time.Millisecond
	}
	if opts.ErrorCode == 0 {
		opts.ErrorCode = recognizer.ErrNoMatch
	}
	return &Factory{opts: opts}
}

func (f *Factory) Capabilities() recognizer.Capabilities {
	return recognizer.Capabilities{LanguageDetection: f.opts.LanguageDetection}
}

func (f *Factory) Create(listener recognizer.Listener) (recognizer.Recognizer, error) {
	if listener == nil {
		return nil, errors.New("listener is required")
	}
	return &Recognizer{factory: f, listener: listener}, nil
}

// Close satisfies the pipeline closer contract.
func (f *Factory) Close() error { return nil }

// next returns the script for the following attempt and whether it should
// fail instead.
func (f *Factory) next() (Utterance, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	fail := f.opts.ErrorEvery > 0 && f.attempts%f.opts.ErrorEvery == 0
	u := f.opts.Utterances[(f.attempts-1)%len(f.opts.Utterances)]
	return u, fail
}

type Recognizer struct {
	factory  *Factory
	listener recognizer.Listener

	mu        sync.Mutex
	current   *attempt
	destroyed bool
}

type attempt struct {
	stop  chan struct{}
	abort chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (r *Recognizer) StartListening(_ context.Context, params recognizer.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return errors.New("recognizer destroyed")
	}
	if r.current != nil {
		return errors.New("recognition attempt already running")
	}

	u, fail := r.factory.next()
	a := &attempt{stop: make(chan struct{}), abort: make(chan struct{}), done: make(chan struct{})}
	r.current = a
	go r.play(a, u, fail, params.PartialResults)
	return nil
}

func (r *Recognizer) play(a *attempt, u Utterance, fail bool, partials bool) {
	defer close(a.done)
	step := r.factory.opts.Step
	l := r.listener

	// wait reports false when the attempt was aborted; a stop request cuts
	// the script short but still ends in a final.
	stopped := false
	wait := func() bool {
		if stopped {
			return true
		}
		select {
		case <-a.abort:
			return false
		case <-a.stop:
			stopped = true
			return true
		case <-time.After(step):
			return true
		}
	}

	l.OnReady()
	if fail {
		if !wait() {
			return
		}
		if r.release(a) {
			l.OnError(r.factory.opts.ErrorCode)
		}
		return
	}

	if !wait() {
		return
	}
	if !stopped {
		l.OnSpeechStart()
	}
	for i, text := range u.Partials {
		if stopped {
			break
		}
		if !wait() {
			return
		}
		l.OnSoundLevel(float32(-30 + 5*(i%4)))
		if partials && !stopped {
			l.OnPartialResult(text)
		}
	}
	if !wait() {
		return
	}
	l.OnEndOfSpeech()
	if r.release(a) {
		l.OnFinalResult(u.Final)
	}
}

// release clears the running attempt before its terminal callback. It
// reports false when the attempt was cancelled in the meantime.
func (r *Recognizer) release(a *attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != a {
		return false
	}
	r.current = nil
	return true
}

func (r *Recognizer) StopListening() error {
	r.mu.Lock()
	a := r.current
	r.mu.Unlock()
	if a != nil {
		a.once.Do(func() { close(a.stop) })
	}
	return nil
}

func (r *Recognizer) Cancel() error {
	r.mu.Lock()
	a := r.current
	r.current = nil
	r.mu.Unlock()
	if a != nil {
		close(a.abort)
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
		close(a.abort)
		<-a.done
	}
	return nil
}
