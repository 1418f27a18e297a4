package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryBus is an in-process Bus for tests. Topics match exactly. Each
// subscription has its own delivery goroutine so handlers run
// asynchronously, as they would with a real broker.
type MemoryBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memorySub
	published  []Message
	publishErr error
	closed     atomic.Bool
}

type memorySub struct {
	ch      chan Message
	handler Handler
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	b.published = append(b.published, msg)

	for _, s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		default:
			// Buffer full, drop like a QoS 0 broker would.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if b.closed.Load() {
		return ErrClosed
	}
	s := &memorySub{ch: make(chan Message, 256), handler: handler}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-s.ch:
				if !ok {
					return
				}
				s.handler(msg)
			}
		}
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, s := range subs {
			close(s.ch)
		}
	}
	b.subs = make(map[string][]*memorySub)
	return nil
}

// Published returns a copy of every message accepted by Publish.
func (b *MemoryBus) Published() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Message(nil), b.published...)
}

// SetPublishError makes every subsequent Publish fail with err.
// Pass nil to restore normal behaviour.
func (b *MemoryBus) SetPublishError(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}
