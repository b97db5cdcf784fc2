// Package session keeps a single-utterance recognizer listening continuously,
// restarting it after every utterance and recovering from its errors.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rbright/canto/internal/event"
	"github.com/rbright/canto/internal/fsm"
	"github.com/rbright/canto/internal/recognizer"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAlreadyListening = errors.New("session already active")
	ErrResetRequired    = errors.New("session failed; reset required")
	ErrNotRunning       = errors.New("session controller is not running")
)

const mailboxSize = 256

// Recorder observes controller activity. A nil Recorder in Options disables
// recording.
type Recorder interface {
	Attempt()
	RestartScheduled(reason string, delay time.Duration)
	RecognizerError(class recognizer.Class)
	Result(final bool)
	StateChanged(state fsm.State)
}

type noopRecorder struct{}

func (noopRecorder) Attempt()                               {}
func (noopRecorder) RestartScheduled(string, time.Duration) {}
func (noopRecorder) RecognizerError(recognizer.Class)       {}
func (noopRecorder) Result(bool)                            {}
func (noopRecorder) StateChanged(fsm.State)                 {}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Logger   *slog.Logger
	Sink     event.Sink
	Recorder Recorder

	// Locales are used by toggle and by start requests that omit locales.
	Locales    []string
	Recognizer recognizer.Options
	Delays     recognizer.Delays
	Recreate   RecreatePolicy

	AfterFunc AfterFunc
	Now       func() time.Time
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	State             fsm.State
	SessionID         string
	ShouldListen      bool
	Locale            string
	DetectionLocales  []string
	LanguageDetection bool
	Generation        uint64
	RecreateFailures  int
}

// Controller owns one continuous listening session. All session fields are
// mutated only by the goroutine executing Run.
type Controller struct {
	logger   *slog.Logger
	factory  recognizer.Factory
	sink     event.Sink
	recorder Recorder

	defaultLocales []string
	recOpts        recognizer.Options
	delays         recognizer.Delays
	recreatePolicy RecreatePolicy
	afterFunc      AfterFunc
	now            func() time.Time

	mailbox chan message
	done    chan struct{}
	running atomic.Bool

	mu     sync.RWMutex
	status Status

	// owner goroutine state
	runCtx           context.Context
	state            fsm.State
	sessionID        string
	shouldListen     bool
	params           recognizer.Params
	rec              recognizer.Recognizer
	listener         *attemptListener
	inFlight         bool
	draining         map[uint64]*drainingInstance
	gen              uint64
	restartTimer     Timer
	restartToken     uint64
	recreate         backoff.BackOff
	recreateFailures int
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(factory recognizer.Factory, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Sink == nil {
		opts.Sink = event.Discard
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Delays == (recognizer.Delays{}) {
		opts.Delays = recognizer.DefaultDelays()
	}
	if opts.Recreate.Interval <= 0 {
		opts.Recreate.Interval = DefaultRecreatePolicy().Interval
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = timeAfterFunc
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Controller{
		logger:         opts.Logger,
		factory:        factory,
		sink:           opts.Sink,
		recorder:       opts.Recorder,
		defaultLocales: append([]string(nil), opts.Locales...),
		recOpts:        opts.Recognizer,
		delays:         opts.Delays,
		recreatePolicy: opts.Recreate,
		afterFunc:      opts.AfterFunc,
		now:            opts.Now,
		mailbox:        make(chan message, mailboxSize),
		done:           make(chan struct{}),
		state:          fsm.StateIdle,
		status:         Status{State: fsm.StateIdle},
		runCtx:         context.Background(),
		draining:       make(map[uint64]*drainingInstance),
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.State
}

// Status returns the current session snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := c.status
	status.DetectionLocales = append([]string(nil), c.status.DetectionLocales...)
	return status
}

// DefaultLocales returns the locales used when a start request names none.
func (c *Controller) DefaultLocales() []string {
	return append([]string(nil), c.defaultLocales...)
}

// Run executes the owner loop until ctx is done. On exit the session is
// cancelled and the live recognizer destroyed.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session controller already running")
	}
	defer close(c.done)

	c.runCtx = ctx
	c.logger.Info("session controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info("session controller stopped")
			return nil
		case msg := <-c.mailbox:
			c.dispatch(msg)
			c.publish()
		}
	}
}

// Start begins a session on locales. It returns once the first attempt has
// been issued or has failed to launch.
func (c *Controller) Start(ctx context.Context, locales []string) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, startMsg{locales: append([]string(nil), locales...), reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Stop ends the session gracefully; an in-flight final result is still
// delivered.
func (c *Controller) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, stopMsg{reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Cancel aborts the session and destroys the live recognizer.
func (c *Controller) Cancel(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, cancelMsg{reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Reset clears a failed session back to idle.
func (c *Controller) Reset(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, resetMsg{reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Snapshot returns the session status as seen by the owner loop once every
// previously queued message has been handled.
func (c *Controller) Snapshot(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := c.send(ctx, statusMsg{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case status := <-reply:
		return status, nil
	case <-c.done:
		return Status{}, ErrNotRunning
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (c *Controller) send(ctx context.Context, msg message) error {
	select {
	case c.mailbox <- msg:
		return nil
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch handles one mailbox message. Snapshots are published before any
// reply so callers observe the state their command produced.
func (c *Controller) dispatch(msg message) {
	switch m := msg.(type) {
	case startMsg:
		err := c.handleStart(m.locales)
		c.publish()
		m.reply <- err
	case stopMsg:
		c.handleStop()
		c.publish()
		m.reply <- nil
	case cancelMsg:
		c.handleCancel()
		c.publish()
		m.reply <- nil
	case resetMsg:
		err := c.handleReset()
		c.publish()
		m.reply <- err
	case statusMsg:
		c.publish()
		m.reply <- c.Status()
	case restartMsg:
		c.handleRestart(m.token)
	case callbackMsg:
		c.handleCallback(m)
	default:
		c.logger.Error("unknown session message", "type", fmt.Sprintf("%T", msg))
	}
}

func (c *Controller) handleStart(locales []string) error {
	switch {
	case c.state == fsm.StateFailed:
		return ErrResetRequired
	case fsm.Active(c.state):
		return fmt.Errorf("%w: state %s", ErrAlreadyListening, c.state)
	}

	if len(locales) == 0 {
		locales = c.defaultLocales
	}
	params, err := recognizer.BuildParams(locales, c.factory.Capabilities(), c.recOpts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if c.rec != nil && c.inFlight {
		c.detachRecognizer()
	}

	c.sessionID = uuid.NewString()
	c.shouldListen = true
	c.params = params
	c.recreate = c.recreatePolicy.newBackOff()
	c.recreateFailures = 0
	c.transition(fsm.EventStart)

	c.logger.Info("session start",
		"session_id", c.sessionID,
		"locale", params.Locale,
		"language_detection", params.LanguageDetection,
		"detection_locales", params.DetectionLocales,
	)

	if err := c.launch(false); err != nil {
		c.logger.Error("session start failed", "session_id", c.sessionID, "error", err.Error())
		c.shouldListen = false
		c.destroyRecognizer()
		c.transition(fsm.EventCancel)
		return err
	}
	c.transition(fsm.EventArmed)
	return nil
}

func (c *Controller) handleStop() {
	c.shouldListen = false
	c.invalidateRestart()
	if c.rec != nil {
		if err := c.rec.StopListening(); err != nil {
			c.logger.Warn("recognizer stop failed", "session_id", c.sessionID, "error", err.Error())
		}
	}
	if c.state != fsm.StateIdle {
		c.transition(fsm.EventStop)
	}
	c.logger.Info("session stop", "session_id", c.sessionID)
}

func (c *Controller) handleCancel() {
	c.shouldListen = false
	c.invalidateRestart()
	if c.rec != nil {
		if err := c.rec.Cancel(); err != nil {
			c.logger.Warn("recognizer cancel failed", "session_id", c.sessionID, "error", err.Error())
		}
	}
	c.destroyRecognizer()
	c.destroyDraining()
	if c.state != fsm.StateIdle {
		c.transition(fsm.EventCancel)
	}
	c.logger.Info("session cancel", "session_id", c.sessionID)
}

func (c *Controller) handleReset() error {
	switch c.state {
	case fsm.StateFailed:
		c.transition(fsm.EventReset)
		return nil
	case fsm.StateIdle:
		return nil
	default:
		return fmt.Errorf("%w: cannot reset from state %s", ErrAlreadyListening, c.state)
	}
}

func (c *Controller) handleCallback(m callbackMsg) {
	if d, ok := c.draining[m.gen]; ok {
		c.handleDrainingCallback(d, m)
		return
	}
	if c.listener == nil || m.gen != c.listener.gen {
		c.logger.Debug("ignoring stale recognizer callback", "gen", m.gen, "kind", m.kind)
		return
	}

	switch m.kind {
	case callbackReady:
		c.logger.Debug("recognizer ready", "session_id", c.sessionID, "gen", m.gen)
	case callbackSpeechStart:
		c.logger.Debug("speech start", "session_id", c.sessionID, "gen", m.gen)
	case callbackEndOfSpeech:
		c.logger.Debug("end of speech", "session_id", c.sessionID, "gen", m.gen)
	case callbackSoundLevel:
		c.sink.Emit(event.SoundLevel(c.sessionID, m.level, c.now()))
	case callbackPartial:
		c.recorder.Result(false)
		c.sink.Emit(event.Result(c.sessionID, m.text, false, c.now()))
	case callbackFinal:
		c.inFlight = false
		c.handleFinal(m.text)
	case callbackError:
		c.inFlight = false
		c.handleError(m.code)
	}
}

func (c *Controller) handleFinal(text string) {
	c.recorder.Result(true)
	c.sink.Emit(event.Result(c.sessionID, text, true, c.now()))
	if !c.shouldListen {
		return
	}

	switch c.state {
	case fsm.StateListening:
		c.transition(fsm.EventUtterance)
	case fsm.StateBackoff:
		c.transition(fsm.EventRetry)
	}
	if err := c.launch(false); err != nil {
		c.logger.Warn("re-arm after final result failed", "session_id", c.sessionID, "error", err.Error())
		c.handleError(recognizer.ErrClient)
		return
	}
	c.transition(fsm.EventArmed)
}

func (c *Controller) handleError(code recognizer.ErrorCode) {
	class := recognizer.Classify(code)
	c.recorder.RecognizerError(class)
	c.sink.Emit(event.Error(c.sessionID, code, c.now()))

	if class.Fatal() {
		c.logger.Error("recognizer error ends session",
			"session_id", c.sessionID,
			"code", code.String(),
			"class", string(class),
		)
		c.fail()
		return
	}
	if !c.shouldListen {
		return
	}

	delay := c.delays.For(class)
	c.logger.Info("recognizer error; restart scheduled",
		"session_id", c.sessionID,
		"code", code.String(),
		"class", string(class),
		"delay_ms", delay.Milliseconds(),
	)
	c.scheduleRestart(string(class), delay)
	c.transition(fsm.EventError)
}

func (c *Controller) handleRestart(token uint64) {
	if token != c.restartToken || !c.shouldListen {
		return
	}
	c.restartTimer = nil
	c.transition(fsm.EventRetry)

	if err := c.launch(true); err != nil {
		c.recreateFailures++
		next := c.recreate.NextBackOff()
		exhausted := next == backoff.Stop ||
			(c.recreatePolicy.MaxAttempts > 0 && c.recreateFailures >= c.recreatePolicy.MaxAttempts)
		if exhausted {
			c.logger.Error("recognizer recreate attempts exhausted",
				"session_id", c.sessionID,
				"failures", c.recreateFailures,
				"error", err.Error(),
			)
			c.sink.Emit(event.Error(c.sessionID, recognizer.ErrClient, c.now()))
			c.fail()
			return
		}
		c.logger.Warn("recognizer recreate failed; retrying",
			"session_id", c.sessionID,
			"failures", c.recreateFailures,
			"delay_ms", next.Milliseconds(),
			"error", err.Error(),
		)
		c.scheduleRestart("recreate", next)
		c.transition(fsm.EventError)
		return
	}

	c.recreate.Reset()
	c.recreateFailures = 0
	c.transition(fsm.EventArmed)
}

// launch issues one attempt, creating a recognizer first when none is live.
// With recreate set any live instance is destroyed beforehand.
func (c *Controller) launch(recreate bool) error {
	c.invalidateRestart()
	if recreate {
		c.destroyRecognizer()
	}

	if c.rec == nil {
		c.gen++
		listener := newAttemptListener(c, c.gen)
		rec, err := c.factory.Create(listener)
		if err != nil {
			listener.kill()
			return fmt.Errorf("create recognizer: %w", err)
		}
		c.rec = rec
		c.listener = listener
	}

	c.recorder.Attempt()
	if err := c.rec.StartListening(c.runCtx, c.params); err != nil {
		return fmt.Errorf("start listening: %w", err)
	}
	c.inFlight = true
	return nil
}

func (c *Controller) destroyRecognizer() {
	if c.rec == nil {
		return
	}
	c.listener.kill()
	if err := c.rec.Destroy(); err != nil {
		c.logger.Warn("recognizer destroy failed", "session_id", c.sessionID, "error", err.Error())
	}
	c.rec = nil
	c.listener = nil
	c.inFlight = false
}

func (c *Controller) fail() {
	c.shouldListen = false
	c.invalidateRestart()
	c.destroyRecognizer()
	c.transition(fsm.EventFail)
}

func (c *Controller) shutdown() {
	c.shouldListen = false
	c.invalidateRestart()
	c.destroyRecognizer()
	c.destroyDraining()
	if c.state != fsm.StateIdle && c.state != fsm.StateFailed {
		c.transition(fsm.EventCancel)
	}
	c.publish()
}

// transition applies one FSM event to the owner state.
func (c *Controller) transition(ev fsm.Event) {
	next, err := fsm.Transition(c.state, ev)
	if err != nil {
		c.logger.Warn("session transition rejected", "session_id", c.sessionID, "error", err.Error())
		return
	}
	if next == c.state {
		return
	}
	c.state = next
	c.recorder.StateChanged(next)
	c.sink.Emit(event.State(c.sessionID, string(next), c.now()))
}

// publish copies owner state into the snapshot read by State and Status.
func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Status{
		State:             c.state,
		SessionID:         c.sessionID,
		ShouldListen:      c.shouldListen,
		Locale:            c.params.Locale,
		DetectionLocales:  append([]string(nil), c.params.DetectionLocales...),
		LanguageDetection: c.params.LanguageDetection,
		Generation:        c.gen,
		RecreateFailures:  c.recreateFailures,
	}
}
