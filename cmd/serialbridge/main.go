// Command serialbridge relays a browser-hosted circuit simulator's serial
// console to an MQTT (or NATS) broker and back.
//
// Usage:
//
//	serialbridge https://sim.example/projects/123                 # broker on localhost:1883
//	serialbridge https://sim.example/projects/123 broker.lan 1884
//	serialbridge -config serialbridge.yaml
//	serialbridge -bus nats -journal dead.db <url> broker.lan
//
// Chrome opens headful on the simulator URL. Log in and start the
// simulation by hand; lines printed as "topic payload..." are published,
// and messages on the control topic are typed into the serial input.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/serialbridge/bridge"
	"github.com/hazyhaar/serialbridge/bus"
	"github.com/hazyhaar/serialbridge/internal/browser"
	"github.com/hazyhaar/serialbridge/internal/config"
	"github.com/hazyhaar/serialbridge/journal"
)

const usage = "usage: serialbridge [flags] <url> [host] [port]"

var errUsage = errors.New("usage")

type options struct {
	cfg       *config.Config
	logLevel  string
	logFormat string
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "serialbridge:", err)
		}
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	logger := newLogger(os.Stderr, opts.logLevel, opts.logFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts.cfg); err != nil {
		logger.Error("serialbridge: fatal", "error", err)
		os.Exit(1)
	}
}

// parseArgs resolves the configuration. Precedence: defaults < YAML file <
// flags < positional arguments.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("serialbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to serialbridge.yaml config file")
	busKind := fs.String("bus", "", "broker protocol: mqtt or nats (default mqtt)")
	topic := fs.String("topic", "", "inbound control topic (default simulator/input)")
	journalPath := fs.String("journal", "", "SQLite file recording dropped inbound messages")
	headless := fs.Bool("headless", false, "run Chrome headless")
	remote := fs.String("remote", "", "DevTools WebSocket URL of a running Chrome")
	userData := fs.String("user-data-dir", "", "Chrome profile directory kept between runs")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.LoadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["bus"] {
		cfg.Bus.Kind = *busKind
	}
	if set["topic"] {
		cfg.Bus.ControlTopic = *topic
	}
	if set["journal"] {
		cfg.Journal.Path = *journalPath
	}
	if set["headless"] {
		cfg.Browser.Headless = *headless
	}
	if set["remote"] {
		cfg.Browser.Remote = *remote
	}
	if set["user-data-dir"] {
		cfg.Browser.UserDataDir = *userData
	}

	pos := fs.Args()
	if len(pos) > 3 {
		return nil, errUsage
	}
	if len(pos) > 0 {
		cfg.URL = pos[0]
	}
	if len(pos) > 1 {
		cfg.Bus.Host = pos[1]
	}
	if len(pos) > 2 {
		cfg.Bus.Port = pos[2]
	}
	if cfg.URL == "" {
		return nil, errUsage
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &options{cfg: cfg, logLevel: *logLevel, logFormat: *logFormat}, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	b, err := bus.Open(bus.Config{
		Kind:     bus.Kind(cfg.Bus.Kind),
		Host:     cfg.Bus.Host,
		Port:     cfg.Bus.Port,
		ClientID: cfg.Bus.ClientID,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	defer b.Close()

	breaker := bus.NewCircuitBreaker(
		bus.WithBreakerThreshold(cfg.Breaker.Threshold),
		bus.WithBreakerResetTimeout(cfg.Breaker.ResetTimeout),
	)

	var dead bridge.DeadLetter
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer j.Close()
		dead = j
	}

	mgr := browser.NewManager(browser.Config{
		URL:              cfg.URL,
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		UserDataDir:      cfg.Browser.UserDataDir,
		Headless:         cfg.Browser.Headless,
		Stealth:          cfg.Browser.Stealth,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		TextFrame:        cfg.Browser.TextFrame,
		TextSelector:     cfg.Browser.TextSelector,
		Logger:           logger,
	})
	sess, err := mgr.Start(ctx)
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer mgr.Close()

	br, err := bridge.New(bridge.Config{
		Session:      sess,
		Bus:          bus.WithBreaker(b, breaker),
		ControlTopic: cfg.Bus.ControlTopic,
		Resolver: bridge.EditorResolver{
			FrameMatch: cfg.Inject.FrameMatch,
			Pick:       bridge.Pick(cfg.Inject.Pick),
		},
		DeadLetter:    dead,
		PollInterval:  cfg.Poll.Interval,
		PollTimeout:   cfg.Poll.Timeout,
		InjectTimeout: cfg.Inject.Timeout,
		MaxLines:      cfg.Parse.MaxLines,
		QueueSize:     cfg.Inbound.QueueSize,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info("serialbridge: running",
		"url", cfg.URL, "bus", cfg.Bus.Kind, "broker", cfg.Bus.Host,
		"control_topic", cfg.Bus.ControlTopic, "journal", cfg.Journal.Path != "")

	err = br.Run(ctx)
	s := br.Stats()
	logger.Info("serialbridge: stopped",
		"ticks", s.Ticks, "ticks_skipped", s.TicksSkipped, "published", s.Published,
		"publish_errors", s.PublishErrors, "injected", s.Injected, "dropped", s.Dropped)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
