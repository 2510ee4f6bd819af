package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
)

// SQLiteStore persists records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	pool   *connPool
	mu     sync.RWMutex
	closed bool
}

// DefaultPoolSize is the number of connections retained by the store.
const DefaultPoolSize = 4

// NewSQLiteStore creates a new SQLite record store with the default
// pool size. The path should be a file path (e.g., "./vault.db") or
// ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithPool(path, DefaultPoolSize)
}

// NewSQLiteStoreWithPool creates a SQLite record store retaining up to
// poolSize connections. Demand beyond the pool is served by transient
// connections rather than blocking.
func NewSQLiteStoreWithPool(path string, poolSize int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			last_modified TEXT NOT NULL,
			status TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_status
		ON records(status)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create status index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_modified
		ON records(last_modified)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create modified index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_state (
			name TEXT PRIMARY KEY,
			last_sync_time TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sync_state table: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		pool: newConnPool(db, poolSize),
	}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec record.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	conn, pooled, err := s.pool.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.release(conn, pooled)

	_, err = conn.ExecContext(ctx, `
		INSERT INTO records (id, payload, last_modified, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			last_modified = excluded.last_modified,
			status = excluded.status
	`, rec.ID, []byte(rec.Payload), rec.LastModified.UTC().Format(time.RFC3339Nano), string(rec.Status))

	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return record.Record{}, ErrStoreClosed
	}

	conn, pooled, err := s.pool.acquire(ctx)
	if err != nil {
		return record.Record{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.release(conn, pooled)

	row := conn.QueryRowContext(ctx, `
		SELECT id, payload, last_modified, status FROM records
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return record.Record{}, ErrNotFound
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetAll implements Store.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]record.Record, error) {
	return s.query(ctx, `
		SELECT id, payload, last_modified, status FROM records
		ORDER BY id
	`)
}

// GetByStatus implements Store.
func (s *SQLiteStore) GetByStatus(ctx context.Context, status record.SyncStatus) ([]record.Record, error) {
	return s.query(ctx, `
		SELECT id, payload, last_modified, status FROM records
		WHERE status = ?
		ORDER BY id
	`, string(status))
}

// GetModifiedSince implements Store.
func (s *SQLiteStore) GetModifiedSince(ctx context.Context, t time.Time) ([]record.Record, error) {
	return s.query(ctx, `
		SELECT id, payload, last_modified, status FROM records
		WHERE last_modified > ?
		ORDER BY last_modified
	`, t.UTC().Format(time.RFC3339Nano))
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	conn, pooled, err := s.pool.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.release(conn, pooled)

	if _, err := conn.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Checkpoint implements Store.
func (s *SQLiteStore) Checkpoint(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return time.Time{}, ErrStoreClosed
	}

	conn, pooled, err := s.pool.acquire(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.release(conn, pooled)

	var stamp string
	err = conn.QueryRowContext(ctx, `
		SELECT last_sync_time FROM sync_state WHERE name = ?
	`, checkpointKey).Scan(&stamp)

	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get checkpoint: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return t, nil
}

// SetCheckpoint implements Store.
func (s *SQLiteStore) SetCheckpoint(ctx context.Context, t time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	conn, pooled, err := s.pool.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.release(conn, pooled)

	_, err = conn.ExecContext(ctx, `
		INSERT INTO sync_state (name, last_sync_time)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_sync_time = excluded.last_sync_time
	`, checkpointKey, t.UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.pool.close()
	return s.db.Close()
}

// query runs a multi-row record select on a pooled connection.
func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	conn, pooled, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer s.pool.release(conn, pooled)

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]record.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// scanRecord reads one record row from a Scan function.
func scanRecord(scan func(...any) error) (record.Record, error) {
	var rec record.Record
	var payload []byte
	var stamp, status string

	if err := scan(&rec.ID, &payload, &stamp, &status); err != nil {
		return record.Record{}, err
	}

	rec.Payload = payload
	rec.Status = record.SyncStatus(status)

	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return record.Record{}, fmt.Errorf("parse last_modified: %w", err)
	}
	rec.LastModified = t
	return rec, nil
}
