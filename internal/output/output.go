// Package output delivers session events to their destinations.
package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/rbright/canto/internal/event"
)

// DropCounter records events a sink discarded instead of blocking.
type DropCounter interface {
	Dropped(sink string)
}

type noopDrops struct{}

func (noopDrops) Dropped(string) {}

func dropsOrNoop(d DropCounter) DropCounter {
	if d == nil {
		return noopDrops{}
	}
	return d
}

// Multi fans each event out to every sink in order.
type Multi []event.Sink

func (m Multi) Emit(ev event.Event) {
	for _, sink := range m {
		sink.Emit(ev)
	}
}

// Only forwards events of the given kinds to sink.
func Only(sink event.Sink, kinds ...event.Kind) event.Sink {
	allowed := make(map[event.Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		allowed[kind] = struct{}{}
	}
	return event.SinkFunc(func(ev event.Event) {
		if _, ok := allowed[ev.Kind]; ok {
			sink.Emit(ev)
		}
	})
}

// Writer encodes events as JSON lines.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Emit(ev event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(ev)
}
