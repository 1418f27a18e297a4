// Package browser launches Chrome (or attaches to a running one), opens the
// simulator URL and exposes that tab as a bridge.Session.
//
// The tab is never recycled: a person logs in and starts the simulation by
// hand, and a relaunch would throw that session away.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// URL is the simulator page to open.
	URL string

	// RemoteURL is the DevTools WebSocket URL of an already running Chrome.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome executable. Empty = look it up on the system, then
	// let rod download one.
	Bin string

	// UserDataDir keeps cookies between runs so the simulator login survives
	// a restart. Empty = throwaway profile.
	UserDataDir string

	Headless bool

	// Stealth opens the tab through go-rod/stealth.
	Stealth bool

	// XvfbDisplay starts Xvfb on this display for a headful browser on a
	// machine without a screen. Empty = use the current DISPLAY.
	XvfbDisplay string

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// NavigateTimeout bounds the initial navigation. Default: 30s.
	NavigateTimeout time.Duration

	// TextFrame is a URL substring selecting the frame whose text is read.
	// Empty = the top document.
	TextFrame string

	// TextSelector is the CSS selector whose innerText is the snapshot.
	// Default: "body".
	TextSelector string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.TextSelector == "" {
		c.TextSelector = "body"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process (if it launched one) and the simulator tab.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	xvfb    *xvfbProc
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches or attaches to Chrome, opens a tab on cfg.URL and returns
// it as a Session.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b

	page, err := m.openTab(ctx, b)
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.page = page
	return newSession(page, m.cfg), nil
}

// Close shuts down Chrome (when launched by us) and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		if !m.cfg.Headless && m.cfg.XvfbDisplay != "" {
			if err := m.startXvfb(ctx); err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
		}

		l := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		} else if path, found := launcher.LookPath(); found {
			l = l.Bin(path)
		}
		if m.cfg.UserDataDir != "" {
			l = l.UserDataDir(m.cfg.UserDataDir)
		}
		if m.xvfb != nil {
			l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		}

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) openTab(ctx context.Context, b *rod.Browser) (*rod.Page, error) {
	log := m.cfg.Logger

	var page *rod.Page
	var err error
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, m.cfg.ResourceBlocking); err != nil {
			log.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(m.cfg.URL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", m.cfg.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", m.cfg.URL, "error", err)
	}

	log.Info("browser: tab ready", "url", m.cfg.URL)
	return page, nil
}

func (m *Manager) cleanup() error {
	var errs []error
	if m.browser != nil {
		if m.lnch != nil {
			errs = append(errs, m.browser.Close())
		} else if m.page != nil {
			// An attached browser belongs to someone else: close only the
			// tab we opened. The DevTools connection ends with the process.
			errs = append(errs, m.page.Close())
		}
		m.browser = nil
		m.page = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	errs = append(errs, m.stopXvfb())
	return errors.Join(errs...)
}
