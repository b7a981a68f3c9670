// Package journal records provider sessions to SQLite and replays them.
//
// Ownership boundary:
// - the events table (one row per delivered event, wire-encoded payload)
// - Tee, which records a live provider session
// - Replay, which serves a recorded session as a provider
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/danmuck/surfacectl/internal/protocol"
	"github.com/danmuck/surfacectl/internal/surface"
)

var (
	ErrUnknownSession = errors.New("journal: unknown session")
	ErrEmptySession   = errors.New("journal: empty session name")
)

const schema = `CREATE TABLE IF NOT EXISTS events (
	session TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	identity TEXT NOT NULL,
	payload BLOB NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (session, seq)
)`

// Store is a SQLite event journal.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// SessionInfo summarises one recorded session.
type SessionInfo struct {
	Name   string
	Events int
	First  time.Time
	Last   time.Time
}

// Record is one journaled event.
type Record struct {
	Seq        uint64
	RecordedAt time.Time
	Event      surface.Event
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "surfacectl.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("journal: create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create events table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores ev as entry seq of session.
func (s *Store) Append(ctx context.Context, session string, seq uint64, ev surface.Event, at time.Time) error {
	if session == "" {
		return ErrEmptySession
	}
	payload, err := protocol.Marshal(protocol.EncodeSurfaceEvent(seq, ev, uint64(at.UnixMilli())))
	if err != nil {
		return fmt.Errorf("journal: encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session, seq, kind, identity, payload, recorded_at) VALUES(?,?,?,?,?,?)`,
		session, int64(seq), int(ev.Kind), ev.ID.String(), payload, at.UnixMilli(),
	); err != nil {
		return fmt.Errorf("journal: insert %s/%d: %w", session, seq, err)
	}
	return nil
}

// Sessions lists recorded sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session, COUNT(*), MIN(recorded_at), MAX(recorded_at) FROM events GROUP BY session ORDER BY MIN(recorded_at), session`)
	if err != nil {
		return nil, fmt.Errorf("journal: select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionInfo
	for rows.Next() {
		var (
			info        SessionInfo
			first, last int64
		)
		if err := rows.Scan(&info.Name, &info.Events, &first, &last); err != nil {
			return nil, fmt.Errorf("journal: scan session: %w", err)
		}
		info.First = time.UnixMilli(first)
		info.Last = time.UnixMilli(last)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Events loads a session in sequence order.
func (s *Store) Events(ctx context.Context, session string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, payload, recorded_at FROM events WHERE session = ? ORDER BY seq`, session)
	if err != nil {
		return nil, fmt.Errorf("journal: select events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			seq     int64
			payload []byte
			at      int64
		)
		if err := rows.Scan(&seq, &payload, &at); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		msg, err := protocol.Unmarshal(payload)
		if err != nil {
			return nil, fmt.Errorf("journal: %s/%d: %w", session, seq, err)
		}
		decoded, err := protocol.DecodeSurfaceEvent(msg)
		if err != nil {
			return nil, fmt.Errorf("journal: %s/%d: %w", session, seq, err)
		}
		out = append(out, Record{
			Seq:        uint64(seq),
			RecordedAt: time.UnixMilli(at),
			Event:      decoded.Event,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, session)
	}
	return out, nil
}
