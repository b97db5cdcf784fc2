package session

import (
	"github.com/rbright/canto/internal/event"
	"github.com/rbright/canto/internal/recognizer"
)

// drainingInstance is a stopped recognizer whose attempt has not reported
// its terminal callback yet. It belongs to the session that stopped it.
type drainingInstance struct {
	rec       recognizer.Recognizer
	listener  *attemptListener
	sessionID string
}

// detachRecognizer moves the live instance aside so a new session can create
// its own while the stopped attempt finishes.
func (c *Controller) detachRecognizer() {
	c.draining[c.listener.gen] = &drainingInstance{
		rec:       c.rec,
		listener:  c.listener,
		sessionID: c.sessionID,
	}
	c.logger.Debug("draining stopped recognizer", "session_id", c.sessionID, "gen", c.listener.gen)
	c.rec = nil
	c.listener = nil
	c.inFlight = false
}

// handleDrainingCallback forwards the stopped attempt's results under its own
// session ID. The terminal callback releases the instance; nothing re-arms.
func (c *Controller) handleDrainingCallback(d *drainingInstance, m callbackMsg) {
	switch m.kind {
	case callbackPartial:
		c.recorder.Result(false)
		c.sink.Emit(event.Result(d.sessionID, m.text, false, c.now()))
	case callbackFinal:
		c.recorder.Result(true)
		c.sink.Emit(event.Result(d.sessionID, m.text, true, c.now()))
		c.releaseDraining(m.gen)
	case callbackError:
		c.recorder.RecognizerError(recognizer.Classify(m.code))
		c.sink.Emit(event.Error(d.sessionID, m.code, c.now()))
		c.releaseDraining(m.gen)
	}
}

func (c *Controller) releaseDraining(gen uint64) {
	d, ok := c.draining[gen]
	if !ok {
		return
	}
	delete(c.draining, gen)
	d.listener.kill()
	if err := d.rec.Destroy(); err != nil {
		c.logger.Warn("recognizer destroy failed", "session_id", d.sessionID, "error", err.Error())
	}
}

func (c *Controller) destroyDraining() {
	for gen, d := range c.draining {
		if err := d.rec.Cancel(); err != nil {
			c.logger.Warn("recognizer cancel failed", "session_id", d.sessionID, "error", err.Error())
		}
		c.releaseDraining(gen)
	}
}
