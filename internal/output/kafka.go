package output

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rbright/canto/internal/event"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig selects brokers and per-kind topics. An empty topic disables
// that kind.
type KafkaConfig struct {
	Brokers            []string
	TopicPartial       string
	TopicFinal         string
	TopicEvents        string
	IncludeSoundLevels bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes transcripts and session events to Kafka topics. Writers are
// asynchronous so Emit never waits on the broker.
type Kafka struct {
	cfg    KafkaConfig
	logger *slog.Logger

	partial messageWriter
	final   messageWriter
	events  messageWriter
}

func NewKafka(cfg KafkaConfig, logger *slog.Logger, drops DropCounter) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	drops = dropsOrNoop(drops)

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string) messageWriter {
		if topic == "" {
			return nil
		}
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Transport:    transport,
			Completion: func(messages []kafka.Message, err error) {
				if err == nil {
					return
				}
				for range messages {
					drops.Dropped("kafka")
				}
				logger.Error("kafka write failed", "topic", topic, "messages", len(messages), "error", err.Error())
			},
		}
	}

	logger.Info("kafka sink initialized",
		"brokers", cfg.Brokers,
		"topic_partial", cfg.TopicPartial,
		"topic_final", cfg.TopicFinal,
		"topic_events", cfg.TopicEvents,
	)

	return &Kafka{
		cfg:     cfg,
		logger:  logger,
		partial: newWriter(cfg.TopicPartial),
		final:   newWriter(cfg.TopicFinal),
		events:  newWriter(cfg.TopicEvents),
	}, nil
}

func (k *Kafka) Emit(ev event.Event) {
	writer := k.writerFor(ev)
	if writer == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		k.logger.Error("marshal event for kafka", "error", err.Error())
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: payload,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	if err := writer.WriteMessages(context.Background(), msg); err != nil {
		k.logger.Error("kafka write failed", "kind", string(ev.Kind), "error", err.Error())
	}
}

func (k *Kafka) writerFor(ev event.Event) messageWriter {
	switch {
	case ev.Kind == event.KindResult && ev.IsFinal:
		return k.final
	case ev.Kind == event.KindResult:
		return k.partial
	case ev.Kind == event.KindSoundLevel && !k.cfg.IncludeSoundLevels:
		return nil
	default:
		return k.events
	}
}

// Close flushes and closes every writer.
func (k *Kafka) Close() error {
	var errs []error
	for _, writer := range []messageWriter{k.partial, k.final, k.events} {
		if writer == nil {
			continue
		}
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
