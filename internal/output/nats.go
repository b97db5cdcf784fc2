package output

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rbright/canto/internal/event"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events on <subject>.<kind>.
type NATS struct {
	pub     publisher
	subject string
	logger  *slog.Logger
	drops   DropCounter
	closer  func()
}

// DialNATS connects to url and returns a sink publishing under subject.
func DialNATS(url string, subject string, logger *slog.Logger, drops DropCounter) (*NATS, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}
	conn, err := nats.Connect(url,
		nats.Name("canto"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, err
	}
	sink := newNATS(conn, subject, logger, drops)
	sink.closer = conn.Close
	return sink, nil
}

func newNATS(pub publisher, subject string, logger *slog.Logger, drops DropCounter) *NATS {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	subject = strings.TrimSuffix(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = "canto"
	}
	return &NATS{pub: pub, subject: subject, logger: logger, drops: dropsOrNoop(drops)}
}

func (n *NATS) Emit(ev event.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshal event for nats", "error", err.Error())
		return
	}
	if err := n.pub.Publish(n.subject+"."+string(ev.Kind), payload); err != nil {
		n.drops.Dropped("nats")
		n.logger.Warn("nats publish failed", "kind", string(ev.Kind), "error", err.Error())
	}
}

func (n *NATS) Close() error {
	if n.closer != nil {
		n.closer()
	}
	return nil
}
