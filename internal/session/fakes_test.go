package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/canto/internal/event"
	"github.com/rbright/canto/internal/fsm"
	"github.com/rbright/canto/internal/recognizer"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	listener recognizer.Listener

	mu       sync.Mutex
	params   []recognizer.Params
	startErr error

	stopCalls    atomic.Int32
	cancelCalls  atomic.Int32
	destroyCalls atomic.Int32
}

func (r *fakeRecognizer) StartListening(_ context.Context, params recognizer.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = append(r.params, params)
	return r.startErr
}

func (r *fakeRecognizer) StopListening() error {
	r.stopCalls.Add(1)
	return nil
}

func (r *fakeRecognizer) Cancel() error {
	r.cancelCalls.Add(1)
	return nil
}

func (r *fakeRecognizer) Destroy() error {
	r.destroyCalls.Add(1)
	return nil
}

func (r *fakeRecognizer) attempts() []recognizer.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recognizer.Params(nil), r.params...)
}

func (r *fakeRecognizer) failStarts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

type fakeFactory struct {
	caps recognizer.Capabilities

	mu          sync.Mutex
	created     []*fakeRecognizer
	createFails int
	startErr    error
}

func (f *fakeFactory) Capabilities() recognizer.Capabilities { return f.caps }

func (f *fakeFactory) Create(listener recognizer.Listener) (recognizer.Recognizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFails > 0 {
		f.createFails--
		return nil, errors.New("recognizer unavailable")
	}
	rec := &fakeRecognizer{listener: listener, startErr: f.startErr}
	f.created = append(f.created, rec)
	return rec, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) last() *fakeRecognizer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

func (f *fakeFactory) setCreateFails(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createFails = n
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

// fire runs the callback regardless of Stop, like a timer that raced its
// cancellation.
func (t *fakeTimer) fire() { t.f() }

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Emit(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) ofKind(kind event.Kind) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	ctrl    *Controller
	factory *fakeFactory
	sched   *fakeScheduler
	sink    *recordingSink
}

func newHarness(t *testing.T, caps recognizer.Capabilities, mutate func(*Options)) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		factory: &fakeFactory{caps: caps},
		sched:   &fakeScheduler{},
		sink:    &recordingSink{},
	}
	opts := Options{
		Sink:       h.sink,
		AfterFunc:  h.sched.AfterFunc,
		Recognizer: recognizer.Options{PartialResults: true},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = NewController(h.factory, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return h
}

func (h *harness) start(locales ...string) {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Start(context.Background(), locales))
}

// sync returns once every message queued before it has been handled.
func (h *harness) sync() {
	h.t.Helper()
	_, err := h.ctrl.Snapshot(context.Background())
	require.NoError(h.t, err)
}

func (h *harness) state() fsm.State {
	h.t.Helper()
	status, err := h.ctrl.Snapshot(context.Background())
	require.NoError(h.t, err)
	return status.State
}
