package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus implements Bus using core NATS (no JetStream). MQTT-style topic
// names are used verbatim as NATS subjects.
type NATSBus struct {
	conn   *nats.Conn
	logger *slog.Logger
	closed atomic.Bool
}

// NewNATSBus connects to a NATS server. With RetryOnFailedConnect the
// connection object is returned even when the server is down.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	cfg.defaults()
	url := "nats://" + cfg.Addr()
	log := cfg.Logger

	conn, err := nats.Connect(url,
		nats.Name(cfg.ClientID),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.ConnectHandler(func(*nats.Conn) {
			log.Info("bus: nats connected", "url", url)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info("bus: nats reconnected", "url", url)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("bus: nats disconnected", "url", url, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: nats connect: %w", err)
	}
	if !conn.IsConnected() {
		log.Warn("bus: nats server not reachable yet, retrying in background", "url", url)
	}
	return &NATSBus{conn: conn, logger: log}, nil
}

func (b *NATSBus) Publish(_ context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.conn.IsConnected() {
		return ErrNotConnected
	}
	return b.conn.Publish(topic, payload)
}

func (b *NATSBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	if b.closed.Load() {
		return ErrClosed
	}
	_, err := b.conn.Subscribe(topic, func(m *nats.Msg) {
		handler(Message{Topic: m.Subject, Payload: m.Data})
	})
	if err != nil {
		return fmt.Errorf("bus: nats subscribe %s: %w", topic, err)
	}
	b.logger.Info("bus: nats subscribed", "topic", topic)
	return nil
}

func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.conn.Close()
	return nil
}
