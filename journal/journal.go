// Package journal records what the bridge drops: inbound events that could
// not be injected and events rejected by a full queue. It is an optional
// SQLite-backed dead-letter log; the bridge never replays from it.
//
//	import _ "modernc.org/sqlite"
//	j, err := journal.Open("serialbridge.db", logger)
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/serialbridge/idgen"
)

// Schema for the dropped table.
const Schema = `
CREATE TABLE IF NOT EXISTS dropped (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	event_id   TEXT NOT NULL DEFAULT '',
	topic      TEXT NOT NULL DEFAULT '',
	payload    BLOB,
	reason     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dropped_kind ON dropped(kind, created_at);
`

// Kind classifies a dropped entry.
type Kind string

const (
	KindUndelivered Kind = "undelivered" // frame/input not found or injection failed
	KindOverflow    Kind = "overflow"    // inbound queue full
)

// Entry is one dropped item.
type Entry struct {
	ID        string
	Kind      Kind
	EventID   string
	Topic     string
	Payload   []byte
	Reason    string
	CreatedAt time.Time
}

// Journal writes entries to SQLite. Safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	newID  idgen.Generator
}

// Open opens (or creates) the journal database at path with WAL pragmas
// and applies Schema. The caller must blank-import modernc.org/sqlite.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", p, err)
		}
	}

	j, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an already-open database and applies Schema.
func New(db *sql.DB, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db, logger: logger, newID: idgen.UUIDv7()}, nil
}

// Record stores e. Errors are logged, not returned: a failing journal must
// never stall the bridge.
func (j *Journal) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO dropped (id, kind, event_id, topic, payload, reason, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		e.ID, string(e.Kind), e.EventID, e.Topic, e.Payload, e.Reason, e.CreatedAt.UnixMilli())
	if err != nil {
		j.logger.Error("journal: record failed", "kind", e.Kind, "event_id", e.EventID, "error", err)
	}
}

// List returns up to limit entries of the given kind, newest first.
// An empty kind lists all kinds.
func (j *Journal) List(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, event_id, topic, payload, reason, created_at
		FROM dropped
		WHERE ? = '' OR kind = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var k string
		var ms int64
		if err := rows.Scan(&e.ID, &k, &e.EventID, &e.Topic, &e.Payload, &e.Reason, &ms); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Kind = Kind(k)
		e.CreatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
