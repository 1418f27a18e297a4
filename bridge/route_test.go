package bridge

import (
	"context"
	"errors"
	"testing"
)

func editorSession(inputs ...Element) *fakeSession {
	return &fakeSession{frames: []Frame{
		&fakeFrame{url: "https://sim.example/dashboard"},
		&fakeFrame{url: "https://sim.example/editor/abc", inputs: inputs},
	}}
}

func TestRouter_InjectReplacesContent(t *testing.T) {
	in := &fakeInput{name: "console", value: "stale text"}
	r := NewRouter(editorSession(in), nil, nil)

	state, err := r.Deliver(context.Background(), Event{ID: "e1", Topic: "simulator/input", Payload: []byte("LED_ON")})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if state != StateInjected {
		t.Fatalf("state = %s, want injected", state)
	}
	sub := in.Submitted()
	if len(sub) != 1 || sub[0] != "LED_ON" {
		t.Fatalf("submitted = %q, want [LED_ON]", sub)
	}
	if got := in.Actions(); got != "click,Backspace,type,Enter" {
		t.Errorf("actions = %s", got)
	}
}

func TestRouter_PicksLastInput(t *testing.T) {
	first := &fakeInput{name: "search"}
	last := &fakeInput{name: "console"}
	r := NewRouter(editorSession(first, last), nil, nil)

	if _, err := r.Deliver(context.Background(), Event{Payload: []byte("go")}); err != nil {
		t.Fatal(err)
	}
	if len(first.Submitted()) != 0 {
		t.Error("first input received text")
	}
	if len(last.Submitted()) != 1 {
		t.Error("last input did not receive text")
	}
}

func TestRouter_PickFirst(t *testing.T) {
	first := &fakeInput{name: "search"}
	last := &fakeInput{name: "console"}
	r := NewRouter(editorSession(first, last), EditorResolver{Pick: PickFirst}, nil)

	if _, err := r.Deliver(context.Background(), Event{Payload: []byte("go")}); err != nil {
		t.Fatal(err)
	}
	if len(first.Submitted()) != 1 || len(last.Submitted()) != 0 {
		t.Fatal("PickFirst did not select the first input")
	}
}

func TestRouter_NoEditorFrame(t *testing.T) {
	in := &fakeInput{}
	sess := &fakeSession{frames: []Frame{&fakeFrame{url: "https://sim.example/login", inputs: []Element{in}}}}
	r := NewRouter(sess, nil, nil)

	state, err := r.Deliver(context.Background(), Event{Payload: []byte("LED_ON")})
	if !errors.Is(err, ErrFrameNotFound) {
		t.Fatalf("err = %v, want ErrFrameNotFound", err)
	}
	if state != StateReceived {
		t.Errorf("state = %s, want received", state)
	}
	if in.Actions() != "" {
		t.Errorf("injection attempted: %s", in.Actions())
	}
}

func TestRouter_NoInput(t *testing.T) {
	r := NewRouter(editorSession(), nil, nil)
	state, err := r.Deliver(context.Background(), Event{Payload: []byte("x")})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("err = %v, want ErrTargetNotFound", err)
	}
	if state != StateFrameResolved {
		t.Errorf("state = %s, want frame_resolved", state)
	}
}

func TestRouter_StepFailureAborts(t *testing.T) {
	in := &fakeInput{failOn: "Backspace"}
	r := NewRouter(editorSession(in), nil, nil)

	state, err := r.Deliver(context.Background(), Event{Payload: []byte("x")})
	if !errors.Is(err, errFakeStep) {
		t.Fatalf("err = %v, want step failure", err)
	}
	if state != StateInputResolved {
		t.Errorf("state = %s, want input_resolved", state)
	}
	if got := in.Actions(); got != "click,Backspace" {
		t.Errorf("actions after failure = %s", got)
	}
}

func TestRouter_CustomFrameMatch(t *testing.T) {
	in := &fakeInput{}
	sess := &fakeSession{frames: []Frame{&fakeFrame{url: "https://sim.example/circuits/42", inputs: []Element{in}}}}
	r := NewRouter(sess, EditorResolver{FrameMatch: "/circuits/"}, nil)

	if _, err := r.Deliver(context.Background(), Event{Payload: []byte("x")}); err != nil {
		t.Fatal(err)
	}
}

func TestEvent_TextInvalidUTF8(t *testing.T) {
	ev := Event{Payload: []byte{'o', 'k', 0xff}}
	if got := ev.Text(); got != "ok�" {
		t.Fatalf("Text = %q", got)
	}
}
