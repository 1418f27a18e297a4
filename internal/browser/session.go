package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/serialbridge/bridge"
)

// maxFrameDepth bounds iframe recursion.
const maxFrameDepth = 4

// textEntrySelector matches multi-line text areas and single-line text fields.
const textEntrySelector = `textarea, input:not([type]), input[type="text"], input[type="search"]`

const innerTextJS = `(sel) => {
	const el = document.querySelector(sel);
	return el ? el.innerText : "";
}`

// Session is the simulator tab. It implements bridge.Session.
type Session struct {
	page     *rod.Page
	frame    string
	selector string
	logger   *slog.Logger
}

func newSession(page *rod.Page, cfg Config) *Session {
	return &Session{
		page:     page,
		frame:    cfg.TextFrame,
		selector: cfg.TextSelector,
		logger:   cfg.Logger,
	}
}

// Page returns the underlying rod page.
func (s *Session) Page() *rod.Page { return s.page }

// Text returns the innerText of the configured selector in the configured
// frame. A missing frame or element yields "" so the tick is a no-op.
func (s *Session) Text(ctx context.Context) (string, error) {
	p := s.page
	if s.frame != "" {
		f, err := s.findFrame(ctx, s.frame)
		if err != nil {
			return "", err
		}
		if f == nil {
			return "", nil
		}
		p = f.page
	}

	res, err := p.Context(ctx).Eval(innerTextJS, s.selector)
	if err != nil {
		return "", fmt.Errorf("browser: read text: %w", err)
	}
	return res.Value.Str(), nil
}

// Frames lists the top document followed by nested frames, depth first in
// document order.
func (s *Session) Frames(ctx context.Context) ([]bridge.Frame, error) {
	var frames []*Frame
	if err := s.collect(ctx, s.page, 0, &frames); err != nil {
		return nil, err
	}
	out := make([]bridge.Frame, len(frames))
	for i, f := range frames {
		out[i] = f
	}
	return out, nil
}

func (s *Session) findFrame(ctx context.Context, match string) (*Frame, error) {
	var frames []*Frame
	if err := s.collect(ctx, s.page, 0, &frames); err != nil {
		return nil, err
	}
	for _, f := range frames {
		u, err := f.URL(ctx)
		if err == nil && strings.Contains(u, match) {
			return f, nil
		}
	}
	return nil, nil
}

func (s *Session) collect(ctx context.Context, p *rod.Page, depth int, out *[]*Frame) error {
	*out = append(*out, &Frame{page: p})
	if depth >= maxFrameDepth {
		return nil
	}

	iframes, err := p.Context(ctx).Elements("iframe, frame")
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("browser: list frames: %w", err)
		}
		s.logger.Debug("browser: list nested frames", "depth", depth, "error", err)
		return nil
	}
	for _, el := range iframes {
		fp, err := el.Context(ctx).Frame()
		if err != nil {
			// Detached or not yet loaded.
			s.logger.Debug("browser: skip frame", "error", err)
			continue
		}
		if err := s.collect(ctx, fp, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

// Frame is one navigable context of the tab. It implements bridge.Frame.
type Frame struct {
	page *rod.Page
}

func (f *Frame) URL(ctx context.Context) (string, error) {
	res, err := f.page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("browser: frame url: %w", err)
	}
	return res.Value.Str(), nil
}

func (f *Frame) TextInputs(ctx context.Context) ([]bridge.Element, error) {
	els, err := f.page.Context(ctx).Elements(textEntrySelector)
	if err != nil {
		return nil, fmt.Errorf("browser: list inputs: %w", err)
	}
	out := make([]bridge.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out, nil
}

// Element is a text-entry element. It implements bridge.Element.
type Element struct {
	el *rod.Element
}

func (e *Element) Click(ctx context.Context, count int) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, count)
}

func (e *Element) Press(ctx context.Context, key bridge.Key) error {
	k, ok := keyFor(key)
	if !ok {
		return fmt.Errorf("browser: unsupported key %s", key)
	}
	// rod focuses the element and sends the key on its page under ctx.
	return e.el.Context(ctx).Type(k)
}

func (e *Element) Type(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func keyFor(k bridge.Key) (input.Key, bool) {
	switch k {
	case bridge.KeyBackspace:
		return input.Backspace, true
	case bridge.KeyEnter:
		return input.Enter, true
	default:
		return 0, false
	}
}
