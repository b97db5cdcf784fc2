package output

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rbright/canto/internal/event"
	"github.com/rbright/canto/internal/recognizer"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(KafkaConfig{}, nil, nil)
	require.Error(t, err)
}

func TestNewKafkaBuildsWritersForConfiguredTopics(t *testing.T) {
	k, err := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}, TopicFinal: "canto.final"}, nil, nil)
	require.NoError(t, err)
	require.Nil(t, k.partial)
	require.Nil(t, k.events)

	writer, ok := k.final.(*kafka.Writer)
	require.True(t, ok)
	require.Equal(t, "canto.final", writer.Topic)
	require.True(t, writer.Async)
}

func TestKafkaRoutesEventsByKind(t *testing.T) {
	partial, final, events := &fakeWriter{}, &fakeWriter{}, &fakeWriter{}
	k := &Kafka{partial: partial, final: final, events: events}

	k.Emit(event.Result("s1", "he", false, at))
	k.Emit(event.Result("s1", "hello", true, at))
	k.Emit(event.Error("s1", recognizer.ErrNetwork, at))
	k.Emit(event.SoundLevel("s1", 2, at))

	require.Len(t, partial.msgs, 1)
	require.Len(t, final.msgs, 1)
	require.Len(t, events.msgs, 1, "sound levels are excluded by default")

	msg := final.msgs[0]
	require.Equal(t, "s1", string(msg.Key))
	var decoded event.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "hello", decoded.Text)
	require.Equal(t, []kafka.Header{{Key: "kind", Value: []byte("result")}}, msg.Headers)

	require.NoError(t, k.Close())
	require.True(t, partial.closed)
	require.True(t, final.closed)
	require.True(t, events.closed)
}

func TestKafkaIncludesSoundLevelsWhenEnabled(t *testing.T) {
	events := &fakeWriter{}
	k := &Kafka{cfg: KafkaConfig{IncludeSoundLevels: true}, events: events}

	k.Emit(event.SoundLevel("s1", 2, at))
	require.Len(t, events.msgs, 1)
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSPublishesPerKindSubject(t *testing.T) {
	pub := &fakePublisher{}
	sink := newNATS(pub, "canto.dev.", nil, nil)

	sink.Emit(event.Result("s1", "hello", true, at))
	sink.Emit(event.Error("s1", recognizer.ErrServerDisconnected, at))

	require.Equal(t, []string{"canto.dev.result", "canto.dev.error"}, pub.subjects)
	require.Contains(t, string(pub.payloads[1]), `"code":"server_disconnected"`)
}

func TestNATSCountsFailedPublishes(t *testing.T) {
	drops := &countingDrops{}
	sink := newNATS(&fakePublisher{err: errors.New("disconnected")}, "", nil, drops)

	sink.Emit(event.SoundLevel("s1", 1, at))
	require.Equal(t, 1, drops.count("nats"))
	require.Equal(t, "canto", sink.subject)
}

func TestDialNATSRequiresURL(t *testing.T) {
	_, err := DialNATS(" ", "canto", nil, nil)
	require.Error(t, err)
}
