package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrFrameNotFound means no frame of the session matched the editor view.
	ErrFrameNotFound = errors.New("bridge: editor frame not found")

	// ErrTargetNotFound means the editor frame has no text-entry element.
	ErrTargetNotFound = errors.New("bridge: target not found")
)

// Event is an inbound bus message waiting to be injected.
type Event struct {
	ID       string
	Topic    string
	Payload  []byte
	Received time.Time
}

// Text decodes the payload as UTF-8, replacing invalid sequences.
func (e Event) Text() string {
	if utf8.Valid(e.Payload) {
		return string(e.Payload)
	}
	return strings.ToValidUTF8(string(e.Payload), "�")
}

// State is how far an event got through delivery.
type State int

const (
	StateReceived State = iota
	StateFrameResolved
	StateInputResolved
	StateInjected
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateFrameResolved:
		return "frame_resolved"
	case StateInputResolved:
		return "input_resolved"
	case StateInjected:
		return "injected"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Resolver locates the delivery target for an inbound event. It is asked
// again for every event; targets are never cached.
type Resolver interface {
	ResolveFrame(ctx context.Context, s Session) (Frame, error)
	ResolveInput(ctx context.Context, f Frame) (Element, error)
}

// Pick selects one element among the candidates of a frame.
type Pick string

const (
	PickLast  Pick = "last"
	PickFirst Pick = "first"
)

// DefaultFrameMatch is the URL substring identifying the editor frame.
const DefaultFrameMatch = "editor"

// EditorResolver picks the first frame whose URL contains FrameMatch, then
// the last (or first) text-entry element in it. The serial console input
// is usually the last such element the simulator adds to the page.
type EditorResolver struct {
	FrameMatch string
	Pick       Pick
}

func (r EditorResolver) ResolveFrame(ctx context.Context, s Session) (Frame, error) {
	match := r.FrameMatch
	if match == "" {
		match = DefaultFrameMatch
	}
	frames, err := s.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: list frames: %w", err)
	}
	for _, f := range frames {
		u, err := f.URL(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(u, match) {
			return f, nil
		}
	}
	return nil, ErrFrameNotFound
}

func (r EditorResolver) ResolveInput(ctx context.Context, f Frame) (Element, error) {
	inputs, err := f.TextInputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: list inputs: %w", err)
	}
	if len(inputs) == 0 {
		return nil, ErrTargetNotFound
	}
	if r.Pick == PickFirst {
		return inputs[0], nil
	}
	return inputs[len(inputs)-1], nil
}

// Router delivers inbound events into the session.
type Router struct {
	session  Session
	resolver Resolver
	logger   *slog.Logger
}

// NewRouter creates a Router. A nil resolver means EditorResolver{}.
func NewRouter(s Session, r Resolver, logger *slog.Logger) *Router {
	if r == nil {
		r = EditorResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{session: s, resolver: r, logger: logger}
}

// Deliver runs one event through Received → FrameResolved → InputResolved
// → Injected. On failure it returns the last state reached and the error;
// the caller drops the event.
func (r *Router) Deliver(ctx context.Context, ev Event) (State, error) {
	state := StateReceived
	frame, err := r.resolver.ResolveFrame(ctx, r.session)
	if err != nil {
		return state, err
	}

	state = StateFrameResolved
	el, err := r.resolver.ResolveInput(ctx, frame)
	if err != nil {
		return state, err
	}

	state = StateInputResolved
	if err := Inject(ctx, el, ev.Text()); err != nil {
		return state, err
	}

	r.logger.Info("bridge: injected", "event_id", ev.ID, "topic", ev.Topic, "payload", ev.Text())
	return StateInjected, nil
}
