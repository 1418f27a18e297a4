package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTBus implements Bus over an MQTT 3.1.1 broker with QoS 0.
// Subscriptions are replayed on every (re)connect.
type MQTTBus struct {
	client mqtt.Client
	logger *slog.Logger
	broker string

	mu     sync.Mutex
	subs   map[string]Handler
	closed atomic.Bool
}

// NewMQTTBus creates the client and starts connecting.
func NewMQTTBus(cfg Config) (*MQTTBus, error) {
	cfg.defaults()
	b := &MQTTBus{
		logger: cfg.Logger,
		broker: "tcp://" + cfg.Addr(),
		subs:   make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(b.broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.logger.Warn("bus: mqtt connection lost", "broker", b.broker, "error", err)
		})
	b.client = mqtt.NewClient(opts)

	tok := b.client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		b.logger.Warn("bus: mqtt broker not reachable yet, retrying in background", "broker", b.broker)
	} else if err := tok.Error(); err != nil {
		b.logger.Error("bus: mqtt connect failed", "broker", b.broker, "error", err)
	}
	return b, nil
}

func (b *MQTTBus) Publish(_ context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	tok := b.client.Publish(topic, 0, false, payload)
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			b.logger.Warn("bus: mqtt publish failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

func (b *MQTTBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	b.subs[topic] = handler
	b.mu.Unlock()

	if b.client.IsConnectionOpen() {
		b.subscribe(topic, handler)
	}
	return nil
}

func (b *MQTTBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.client.Disconnect(250)
	return nil
}

func (b *MQTTBus) onConnect(_ mqtt.Client) {
	b.logger.Info("bus: mqtt connected", "broker", b.broker)
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, h := range b.subs {
		b.subscribe(topic, h)
	}
}

func (b *MQTTBus) subscribe(topic string, handler Handler) {
	tok := b.client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		handler(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			b.logger.Error("bus: mqtt subscribe failed", "topic", topic, "error", err)
			return
		}
		b.logger.Info("bus: mqtt subscribed", "topic", topic)
	}()
}
