// Package sqlitestore provides a SQLite-backed event store.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dshills/conductor/internal/event"
)

// Store implements event.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at dsn. Use ":memory:" for a private
// in-process database. Call Migrate before use.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Migrate creates the events table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			ts INTEGER NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			seq INTEGER NOT NULL,
			record BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_ts ON events(ts)`,
		`CREATE INDEX IF NOT EXISTS events_correlation ON events(correlation_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// Append implements event.Store. Appending an id twice replaces the record.
func (s *Store) Append(ctx context.Context, e *event.UniversalEvent) error {
	record, err := event.Encode(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO events (id, event_type, ts, correlation_id, seq, record) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Type, e.Timestamp.UnixNano(), string(e.Source.CorrelationID), int64(e.Sequence), record)
	if err != nil {
		return fmt.Errorf("sqlite append: %w", err)
	}
	return nil
}

// Query implements event.Store. Pattern matching runs in Go; the time and
// correlation predicates run in SQL.
func (s *Store) Query(ctx context.Context, q event.Query) ([]*event.UniversalEvent, error) {
	match, err := q.Matcher()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if q.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, string(q.CorrelationID))
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.Until.UnixNano())
	}
	stmt := "SELECT record FROM events"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	newestFirst := q.Pattern == "" && q.Limit > 0
	if newestFirst {
		stmt += " ORDER BY ts DESC, seq DESC LIMIT ?"
		args = append(args, q.Limit)
	} else {
		stmt += " ORDER BY ts ASC, seq ASC"
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var out []*event.UniversalEvent
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		e := new(event.UniversalEvent)
		if err := e.UnmarshalJSON(record); err != nil {
			return nil, fmt.Errorf("sqlite decode: %w", err)
		}
		if match(e) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if newestFirst {
		reverse(out)
	}
	return event.Limit(out, q.Limit), nil
}

// Cleanup implements event.Store.
func (s *Store) Cleanup(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close implements event.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func reverse(events []*event.UniversalEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
