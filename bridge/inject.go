package bridge

import (
	"context"
	"fmt"
)

// Inject replaces the content of el with text and submits it:
// triple-click to select everything, Backspace to clear, type, Enter.
// The first failing step aborts the sequence.
func Inject(ctx context.Context, el Element, text string) error {
	if err := el.Click(ctx, 3); err != nil {
		return fmt.Errorf("bridge: inject select-all: %w", err)
	}
	if err := el.Press(ctx, KeyBackspace); err != nil {
		return fmt.Errorf("bridge: inject clear: %w", err)
	}
	if text != "" {
		if err := el.Type(ctx, text); err != nil {
			return fmt.Errorf("bridge: inject type: %w", err)
		}
	}
	if err := el.Press(ctx, KeyEnter); err != nil {
		return fmt.Errorf("bridge: inject submit: %w", err)
	}
	return nil
}
