package bridge

import "context"

// Session is the remote simulator as the bridge sees it. The browser
// collaborator implements it; tests use fakes.
type Session interface {
	// Text returns the full rendered text of the simulation surface.
	Text(ctx context.Context) (string, error)

	// Frames enumerates every navigable context of the session (the top
	// document first, then nested frames in document order).
	Frames(ctx context.Context) ([]Frame, error)
}

// Frame is one navigable context within the session.
type Frame interface {
	URL(ctx context.Context) (string, error)

	// TextInputs returns multi-line text areas and single-line text fields
	// in document order.
	TextInputs(ctx context.Context) ([]Element, error)
}

// Element is an interactive text-entry surface.
type Element interface {
	// Click clicks the element count times in quick succession.
	Click(ctx context.Context, count int) error
	Press(ctx context.Context, key Key) error
	Type(ctx context.Context, text string) error
}

// Key is a non-printable key the injector presses.
type Key int

const (
	KeyBackspace Key = iota
	KeyEnter
)

func (k Key) String() string {
	switch k {
	case KeyBackspace:
		return "Backspace"
	case KeyEnter:
		return "Enter"
	default:
		return "Unknown"
	}
}
