package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hazyhaar/serialbridge/bus"
)

// Publisher sends parsed records to the bus, fire-and-forget.
type Publisher struct {
	bus    bus.Bus
	logger *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates a Publisher on b.
func NewPublisher(b bus.Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{bus: b, logger: logger}
}

// Publish sends r.Payload under r.Topic. Failures are logged and counted
// but never retried; the returned error is informational.
func (p *Publisher) Publish(ctx context.Context, r Record) error {
	err := p.bus.Publish(ctx, r.Topic, []byte(r.Payload))
	if err != nil {
		p.failed.Add(1)
		if errors.Is(err, bus.ErrCircuitOpen) {
			p.logger.Debug("bridge: publish skipped, breaker open", "topic", r.Topic)
		} else {
			p.logger.Warn("bridge: publish failed", "topic", r.Topic, "error", err)
		}
		return err
	}
	p.published.Add(1)
	p.logger.Info("bridge: published", "topic", r.Topic, "payload", r.Payload)
	return nil
}
