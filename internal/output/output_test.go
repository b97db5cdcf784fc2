package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/canto/internal/event"
	"github.com/rbright/canto/internal/recognizer"
	"github.com/stretchr/testify/require"
)

type countingDrops struct {
	mu     sync.Mutex
	counts map[string]int
}

func (d *countingDrops) Dropped(sink string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts == nil {
		d.counts = map[string]int{}
	}
	d.counts[sink]++
}

func (d *countingDrops) count(sink string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[sink]
}

var at = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestWriterEncodesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.Emit(event.Result("s1", "hello", true, at))
	w.Emit(event.Error("s1", recognizer.ErrNoMatch, at))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first event.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, event.KindResult, first.Kind)
	require.Equal(t, "hello", first.Text)
	require.True(t, first.IsFinal)

	require.Contains(t, lines[1], `"code":"no_match"`)
	require.Contains(t, lines[1], `"class":"no_speech"`)
}

func TestMultiAndOnly(t *testing.T) {
	var all, results []event.Event
	sink := Multi{
		event.SinkFunc(func(ev event.Event) { all = append(all, ev) }),
		Only(event.SinkFunc(func(ev event.Event) { results = append(results, ev) }), event.KindResult),
	}

	sink.Emit(event.SoundLevel("s1", 2, at))
	sink.Emit(event.Result("s1", "hi", false, at))

	require.Len(t, all, 2)
	require.Len(t, results, 1)
	require.Equal(t, "hi", results[0].Text)
}

func TestBroadcasterDeliversAndDropsSlowSubscribers(t *testing.T) {
	drops := &countingDrops{}
	b := NewBroadcaster(drops)

	ch, unsubscribe := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Emit(event.SoundLevel("s1", float32(i), at))
	}
	require.Equal(t, 5, drops.count("broadcast"))

	first := <-ch
	require.InDelta(t, 0, first.Level, 0.001)

	unsubscribe()
	unsubscribe()
	require.Zero(t, b.Subscribers())

	b.Emit(event.SoundLevel("s1", 1, at))
	drained := 0
	for range ch {
		drained++
	}
	require.Equal(t, subscriberBuffer-1, drained)
}
