// Package bus is the publish/subscribe collaborator of serialbridge. It
// hides the broker protocol (MQTT by default, NATS optionally) behind a
// three-method interface so the bridge only ever sees topics and bytes.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hazyhaar/serialbridge/idgen"
)

var (
	// ErrClosed is returned when operating on a closed bus.
	ErrClosed = errors.New("bus: closed")

	// ErrNotConnected is returned by Publish while the client is still
	// (re)connecting to the broker.
	ErrNotConnected = errors.New("bus: not connected")

	// ErrCircuitOpen is returned by a breaker-wrapped bus while the breaker
	// rejects calls.
	ErrCircuitOpen = errors.New("bus: circuit open")
)

// Bus is a connection to one broker.
// Implementations must be safe for concurrent use.
type Bus interface {
	// Publish sends payload under topic. It does not wait for any
	// broker acknowledgement.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for messages on topic. Handlers run on
	// the client's delivery goroutine and must not block for long.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close disconnects from the broker.
	Close() error
}

// Handler processes one delivered message.
type Handler func(msg Message)

// Message is a message delivered by the broker.
type Message struct {
	Topic   string
	Payload []byte
}

// Kind selects the broker protocol.
type Kind string

const (
	KindMQTT Kind = "mqtt"
	KindNATS Kind = "nats"
)

// Config configures a broker connection.
type Config struct {
	Kind Kind
	Host string
	// Port defaults to 1883 for MQTT and 4222 for NATS.
	Port string
	// ClientID identifies this client to the broker. Default: idgen.ClientID().
	ClientID string
	// ConnectTimeout bounds how long Open waits for the first connection
	// before returning and continuing to retry in the background. Default: 5s.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.Kind == "" {
		c.Kind = KindMQTT
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		switch c.Kind {
		case KindNATS:
			c.Port = "4222"
		default:
			c.Port = "1883"
		}
	}
	if c.ClientID == "" {
		c.ClientID = idgen.ClientID()
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Open connects to the broker selected by cfg.Kind. A broker that cannot
// be reached is not an error: the client keeps retrying in the background
// and Publish returns ErrNotConnected until it succeeds.
func Open(cfg Config) (Bus, error) {
	cfg.defaults()
	switch cfg.Kind {
	case KindMQTT:
		return NewMQTTBus(cfg)
	case KindNATS:
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("bus: unknown kind %q", cfg.Kind)
	}
}
