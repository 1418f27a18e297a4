// Package bridge relays a browser-hosted circuit simulator's serial console
// to a publish/subscribe bus and back.
//
// Outbound, a poll loop reads the console text, skips unchanged snapshots,
// parses the trailing lines as "topic payload..." and publishes each one.
// Inbound, messages on the control topic are queued and typed one at a
// time into the simulator's console input.
//
//	b, err := bridge.New(bridge.Config{Session: sess, Bus: bus, ControlTopic: "simulator/input"})
//	err = b.Run(ctx)
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/serialbridge/bus"
	"github.com/hazyhaar/serialbridge/idgen"
	"github.com/hazyhaar/serialbridge/journal"
)

// ErrQueueFull is returned by Enqueue when the inbound queue is at capacity.
var ErrQueueFull = errors.New("bridge: inbound queue full")

// DefaultControlTopic is the inbound topic when none is configured.
const DefaultControlTopic = "simulator/input"

// DeadLetter receives events the bridge gives up on.
// *journal.Journal implements it.
type DeadLetter interface {
	Record(ctx context.Context, e journal.Entry)
}

// Config configures a Bridge.
type Config struct {
	Session Session
	Bus     bus.Bus

	// ControlTopic is the single inbound topic. Default: DefaultControlTopic.
	ControlTopic string

	// Resolver locates the injection target. Default: EditorResolver{}.
	Resolver Resolver

	// DeadLetter, when set, records dropped inbound events.
	DeadLetter DeadLetter

	// PollInterval is the snapshot period. Default: 200ms.
	PollInterval time.Duration

	// PollTimeout bounds one tick (extraction, parse, publish). Default: 5s.
	PollTimeout time.Duration

	// InjectTimeout bounds the delivery of one inbound event. Default: 10s.
	InjectTimeout time.Duration

	// MaxLines is how many trailing lines are parsed. Default: 10.
	MaxLines int

	// QueueSize bounds the inbound queue. Default: 32.
	QueueSize int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ControlTopic == "" {
		c.ControlTopic = DefaultControlTopic
	}
	if c.Resolver == nil {
		c.Resolver = EditorResolver{}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Second
	}
	if c.InjectTimeout <= 0 {
		c.InjectTimeout = 10 * time.Second
	}
	if c.MaxLines <= 0 {
		c.MaxLines = DefaultMaxLines
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Bridge holds everything the two loops share: the session, the bus, the
// last snapshot and the inbound queue. Build one with New and call Run.
type Bridge struct {
	cfg      Config
	logger   *slog.Logger
	detector ChangeDetector
	pub      *Publisher
	router   *Router
	inbox    chan Event

	inFlight atomic.Bool

	ticks         atomic.Int64
	ticksSkipped  atomic.Int64
	changes       atomic.Int64
	extractErrors atomic.Int64
	received      atomic.Int64
	injected      atomic.Int64
	dropped       atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Ticks         int64 `json:"ticks"`
	TicksSkipped  int64 `json:"ticks_skipped"`
	Changes       int64 `json:"changes"`
	ExtractErrors int64 `json:"extract_errors"`
	Published     int64 `json:"published"`
	PublishErrors int64 `json:"publish_errors"`
	Received      int64 `json:"received"`
	Injected      int64 `json:"injected"`
	Dropped       int64 `json:"dropped"`
}

// New validates cfg and builds a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("bridge: config: session is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("bridge: config: bus is required")
	}
	cfg.defaults()

	return &Bridge{
		cfg:    cfg,
		logger: cfg.Logger,
		pub:    NewPublisher(cfg.Bus, cfg.Logger),
		router: NewRouter(cfg.Session, cfg.Resolver, cfg.Logger),
		inbox:  make(chan Event, cfg.QueueSize),
	}, nil
}

// Stats returns the current counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Ticks:         b.ticks.Load(),
		TicksSkipped:  b.ticksSkipped.Load(),
		Changes:       b.changes.Load(),
		ExtractErrors: b.extractErrors.Load(),
		Published:     b.pub.published.Load(),
		PublishErrors: b.pub.failed.Load(),
		Received:      b.received.Load(),
		Injected:      b.injected.Load(),
		Dropped:       b.dropped.Load(),
	}
}

// Run subscribes to the control topic and runs the poll loop and the
// inbound drainer until ctx is cancelled. A failed subscription is logged
// and the outbound path keeps running. Queued events are discarded on exit.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.cfg.Bus.Subscribe(ctx, b.cfg.ControlTopic, b.onMessage); err != nil {
		b.logger.Error("bridge: subscribe failed", "topic", b.cfg.ControlTopic, "error", err)
	}

	b.logger.Info("bridge: started",
		"control_topic", b.cfg.ControlTopic,
		"poll_interval", b.cfg.PollInterval,
		"inject_timeout", b.cfg.InjectTimeout,
		"max_lines", b.cfg.MaxLines,
		"queue_size", b.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.pollLoop(gctx)
		return nil
	})
	g.Go(func() error {
		b.drain(gctx)
		return nil
	})
	err := g.Wait()

	b.logger.Info("bridge: stopped", "pending_events", len(b.inbox))
	return err
}

// pollLoop fires a tick every PollInterval. A tick still in flight when
// the next one is due causes that one to be skipped, never overlapped.
func (b *Bridge) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.inFlight.CompareAndSwap(false, true) {
				b.ticksSkipped.Add(1)
				b.logger.Debug("bridge: tick skipped, previous still running")
				continue
			}
			go func() {
				defer b.inFlight.Store(false)
				tctx, cancel := context.WithTimeout(ctx, b.cfg.PollTimeout)
				defer cancel()
				if err := b.Tick(tctx); err != nil {
					b.logger.Warn("bridge: tick failed", "error", err)
				}
			}()
		}
	}
}

// Tick runs one Snapshot → Detect → Parse → Publish pass. It returns an
// error only when the snapshot could not be read; publish failures are
// logged by the Publisher and do not fail the tick.
func (b *Bridge) Tick(ctx context.Context) error {
	b.ticks.Add(1)
	text, err := b.cfg.Session.Text(ctx)
	if err != nil {
		b.extractErrors.Add(1)
		return fmt.Errorf("bridge: extract text: %w", err)
	}
	if !b.detector.Detect(text) {
		return nil
	}
	b.changes.Add(1)

	records := Parse(text, b.cfg.MaxLines)
	b.logger.Debug("bridge: snapshot changed", "size", len(text), "records", len(records))
	for _, r := range records {
		b.pub.Publish(ctx, r)
	}
	return nil
}

// onMessage is the bus handler for the control topic.
func (b *Bridge) onMessage(msg bus.Message) {
	ev := Event{
		ID:       idgen.Event(),
		Topic:    msg.Topic,
		Payload:  msg.Payload,
		Received: time.Now(),
	}
	if err := b.Enqueue(ev); err != nil {
		b.logger.Warn("bridge: inbound event dropped", "event_id", ev.ID, "topic", ev.Topic, "error", err)
		b.deadLetter(context.Background(), journal.KindOverflow, ev, err)
	}
}

// Enqueue queues ev for injection without blocking. It returns
// ErrQueueFull when the queue is at capacity; the event is then dropped.
func (b *Bridge) Enqueue(ev Event) error {
	b.received.Add(1)
	select {
	case b.inbox <- ev:
		b.logger.Debug("bridge: inbound event queued", "event_id", ev.ID, "topic", ev.Topic)
		return nil
	default:
		b.dropped.Add(1)
		return ErrQueueFull
	}
}

// drain injects queued events one at a time so two deliveries never
// interleave their keystrokes. Each delivery gets InjectTimeout; an element
// that never becomes interactable costs one event, not the queue.
func (b *Bridge) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.inbox:
			dctx, cancel := context.WithTimeout(ctx, b.cfg.InjectTimeout)
			b.Deliver(dctx, ev)
			cancel()
		}
	}
}

// Deliver injects one event and reports whether it was injected. Failures
// are logged and the event is dropped; it is never re-queued.
func (b *Bridge) Deliver(ctx context.Context, ev Event) bool {
	state, err := b.router.Deliver(ctx, ev)
	if err != nil {
		b.dropped.Add(1)
		b.logger.Warn("bridge: inbound event dropped",
			"event_id", ev.ID, "topic", ev.Topic, "state", state.String(), "error", err)
		b.deadLetter(ctx, journal.KindUndelivered, ev, err)
		return false
	}
	b.injected.Add(1)
	return true
}

func (b *Bridge) deadLetter(ctx context.Context, kind journal.Kind, ev Event, cause error) {
	if b.cfg.DeadLetter == nil {
		return
	}
	b.cfg.DeadLetter.Record(context.WithoutCancel(ctx), journal.Entry{
		Kind:    kind,
		EventID: ev.ID,
		Topic:   ev.Topic,
		Payload: ev.Payload,
		Reason:  cause.Error(),
	})
}
