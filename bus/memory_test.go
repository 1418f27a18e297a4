package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	received := make(chan Message, 1)
	if err := b.Subscribe(ctx, "simulator/input", func(msg Message) { received <- msg }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(ctx, "simulator/input", []byte("LED_ON")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != "LED_ON" {
			t.Errorf("payload = %q, want LED_ON", msg.Payload)
		}
		if msg.Topic != "simulator/input" {
			t.Errorf("topic = %q", msg.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestMemoryBus_ExactTopicOnly(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	received := make(chan Message, 1)
	b.Subscribe(ctx, "a", func(msg Message) { received <- msg })
	b.Publish(ctx, "a/b", []byte("x"))

	select {
	case msg := <-received:
		t.Fatalf("unexpected delivery on %q", msg.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_PublishedAndError(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	b.Publish(ctx, "t1", []byte("one"))
	boom := errors.New("boom")
	b.SetPublishError(boom)
	if err := b.Publish(ctx, "t2", []byte("two")); !errors.Is(err, boom) {
		t.Fatalf("Publish err = %v, want boom", err)
	}
	b.SetPublishError(nil)
	b.Publish(ctx, "t3", []byte("three"))

	got := b.Published()
	if len(got) != 2 || got[0].Topic != "t1" || got[1].Topic != "t3" {
		t.Fatalf("Published = %+v", got)
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus()
	b.Close()
	if err := b.Publish(context.Background(), "t", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after close = %v, want ErrClosed", err)
	}
	if err := b.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Close = %v, want ErrClosed", err)
	}
}
