package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hazyhaar/serialbridge/journal"
)

// fakeSession is an in-memory Session. Text returns texts in order, then
// keeps returning the last one.
type fakeSession struct {
	mu      sync.Mutex
	texts   []string
	textErr error
	frames  []Frame
	calls   int
	block   chan struct{}
}

func (s *fakeSession) Text(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textErr != nil {
		return "", s.textErr
	}
	if len(s.texts) == 0 {
		return "", nil
	}
	t := s.texts[0]
	if len(s.texts) > 1 {
		s.texts = s.texts[1:]
	}
	return t, nil
}

func (s *fakeSession) Frames(context.Context) ([]Frame, error) {
	return s.frames, nil
}

type fakeFrame struct {
	url    string
	inputs []Element
}

func (f *fakeFrame) URL(context.Context) (string, error) { return f.url, nil }

func (f *fakeFrame) TextInputs(context.Context) ([]Element, error) { return f.inputs, nil }

// fakeInput simulates a text field: Click(3) selects all, Backspace deletes
// the selection (or one char), Type inserts, Enter submits the value.
type fakeInput struct {
	mu        sync.Mutex
	name      string
	value     string
	selected  bool
	submitted []string
	actions   []string
	failOn    string

	// hangOnce makes the first Click wait for ctx to end, like an element
	// that never becomes interactable.
	hangOnce bool
}

var errFakeStep = errors.New("fake step failed")

func (in *fakeInput) Click(ctx context.Context, count int) error {
	in.mu.Lock()
	if in.hangOnce {
		in.hangOnce = false
		in.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer in.mu.Unlock()
	in.actions = append(in.actions, "click")
	if in.failOn == "click" {
		return errFakeStep
	}
	if count >= 3 {
		in.selected = true
	}
	return nil
}

func (in *fakeInput) Press(_ context.Context, key Key) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.actions = append(in.actions, key.String())
	if in.failOn == key.String() {
		return errFakeStep
	}
	switch key {
	case KeyBackspace:
		if in.selected {
			in.value = ""
			in.selected = false
		} else if in.value != "" {
			in.value = in.value[:len(in.value)-1]
		}
	case KeyEnter:
		in.submitted = append(in.submitted, in.value)
	}
	return nil
}

func (in *fakeInput) Type(_ context.Context, text string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.actions = append(in.actions, "type")
	if in.failOn == "type" {
		return errFakeStep
	}
	if in.selected {
		in.value = ""
		in.selected = false
	}
	in.value += text
	return nil
}

func (in *fakeInput) Submitted() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.submitted...)
}

func (in *fakeInput) Actions() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return strings.Join(in.actions, ",")
}

type recordingDeadLetter struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (d *recordingDeadLetter) Record(_ context.Context, e journal.Entry) {
	d.mu.Lock()
	d.entries = append(d.entries, e)
	d.mu.Unlock()
}

func (d *recordingDeadLetter) Entries() []journal.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]journal.Entry(nil), d.entries...)
}
