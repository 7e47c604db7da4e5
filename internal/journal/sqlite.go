package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Store is a SQLite-backed journal.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// Open opens or creates the journal at path. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "open sqlite database").
			WithContext("path", path).
			Build()
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "initialize journal schema").
			WithContext("path", path).
			Build()
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL,
		generation INTEGER NOT NULL,
		reason TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_uid ON entries(uid, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends an entry.
func (s *Store) Record(ctx context.Context, uid string, generation uint64, reason string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO entries (uid, generation, reason, timestamp, payload) VALUES (?, ?, ?, ?, ?)",
		uid, int64(generation), reason, s.now().UnixMilli(), []byte(payload),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryJournal, "insert journal entry").
			WithContext("uid", uid).
			Retryable().
			Build()
	}
	return nil
}

// History returns the newest entries for uid, newest first. A limit <= 0 returns all.
func (s *Store) History(ctx context.Context, uid string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, uid, generation, reason, timestamp, payload FROM entries WHERE uid = ? ORDER BY id DESC LIMIT ?",
		uid, limit,
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "query journal").
			WithContext("uid", uid).
			Build()
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

// Latest returns the newest entry for uid.
func (s *Store) Latest(ctx context.Context, uid string) (Entry, error) {
	entries, err := s.History(ctx, uid, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ferrors.NotFoundError("no journal entries").
			WithContext("uid", uid).
			Build()
	}
	return entries[0], nil
}

// Summaries aggregates every uid in the journal, ordered by uid.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.uid, c.n, e.generation, e.reason, e.timestamp
		FROM entries e
		JOIN (SELECT uid, COUNT(*) AS n, MAX(id) AS last FROM entries GROUP BY uid) c
			ON e.id = c.last
		ORDER BY e.uid`)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "query journal summaries").Build()
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var generation, ts int64
		if err := rows.Scan(&sum.UID, &sum.Entries, &generation, &sum.LastReason, &ts); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "scan journal summary").Build()
		}
		sum.LastGeneration = uint64(generation)
		sum.LastSeen = time.UnixMilli(ts)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "iterate journal summaries").Build()
	}
	return out, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var generation, ts int64
		var payload []byte
		if err := rows.Scan(&e.ID, &e.UID, &generation, &e.Reason, &ts, &payload); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "scan journal entry").Build()
		}
		e.Generation = uint64(generation)
		e.Timestamp = time.UnixMilli(ts)
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "iterate journal entries").Build()
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil && !stderrors.Is(err, sql.ErrConnDone) {
		return ferrors.WrapError(err, ferrors.CategoryJournal, "close journal").Build()
	}
	return nil
}
