package session

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Timer is a single-shot scheduled callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RecreatePolicy governs retries when recreating a recognizer after an error
// itself fails. The default retries every second without limit.
type RecreatePolicy struct {
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	// MaxAttempts fails the session after that many consecutive failures.
	// Zero means unbounded.
	MaxAttempts int
}

func DefaultRecreatePolicy() RecreatePolicy {
	return RecreatePolicy{Interval: time.Second, Multiplier: 1}
}

func (p RecreatePolicy) newBackOff() backoff.BackOff {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(interval)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Reset()
	return b
}

// scheduleRestart arms the single pending restart, superseding any earlier
// one.
func (c *Controller) scheduleRestart(reason string, delay time.Duration) {
	c.invalidateRestart()
	token := c.restartToken
	c.recorder.RestartScheduled(reason, delay)
	c.restartTimer = c.afterFunc(delay, func() {
		c.post(restartMsg{token: token})
	})
}

// invalidateRestart stops the pending timer and bumps the token so a timer
// that already fired is ignored when its message is handled.
func (c *Controller) invalidateRestart() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	c.restartToken++
}

// post delivers msg to the owner loop unless the controller has exited.
func (c *Controller) post(msg message) {
	select {
	case c.mailbox <- msg:
	case <-c.done:
	}
}
