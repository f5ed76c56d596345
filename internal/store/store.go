// Package store persists the gateway's client state — the logged-in
// user and the discovered locks — plus an audit trail of unlock
// attempts.
//
// Entities are stored as their canonical JSON forms and reconstructed
// through the entity package's FromJSON functions, so the round trip
// is lossless and the schema never needs to know the field list. The
// core never deletes entities on its own; removal is always an
// explicit caller action.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/arisumika/dormlock-core/internal/entity"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// New creates a Store on an open SQLite connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the schema if it does not exist yet.
//
// Three tables: a single-row user table, the lock set keyed by the
// derived lock ID, and the unlock audit log.
func (s *Store) Init(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS user_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS locks (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS unlock_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lock_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL
	);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating store schema: %w", err)
	}
	return nil
}

// SaveUser persists the user session, replacing any previous one.
func (s *Store) SaveUser(ctx context.Context, user entity.User) error {
	payload, err := user.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}

	query := `
	INSERT INTO user_session (id, payload, updated_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, string(payload), now()); err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// LoadUser reconstructs the persisted user session.
// Returns ErrNoUser when none is stored.
func (s *Store) LoadUser(ctx context.Context) (entity.User, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM user_session WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, ErrNoUser
	}
	if err != nil {
		return entity.User{}, fmt.Errorf("loading user: %w", err)
	}

	user, err := entity.UserFromJSON([]byte(payload))
	if err != nil {
		return entity.User{}, fmt.Errorf("decoding user: %w", err)
	}
	return user, nil
}

// DeleteUser removes the persisted user session. Removing a session
// that does not exist is not an error.
func (s *Store) DeleteUser(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_session`); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// AddLock persists one lock. Returns ErrLockExists when a lock with
// the same ID is already stored — the lock set is keyed by ID and a
// re-import is not an update.
func (s *Store) AddLock(ctx context.Context, lock entity.Lock) error {
	payload, err := lock.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding lock: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO locks (id, payload, created_at) VALUES (?, ?, ?)`,
		lock.ID(), string(payload), now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrLockExists, lock.ID())
		}
		return fmt.Errorf("adding lock: %w", err)
	}
	return nil
}

// ReplaceLocks atomically replaces the stored lock set for one school
// with a freshly discovered one. Locks from other schools are kept.
func (s *Store) ReplaceLocks(ctx context.Context, schoolNo string, locks []entity.Lock) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replacing locks: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE id LIKE ? ESCAPE '\'`, schoolNo+`\_%`); err != nil {
		return fmt.Errorf("clearing school locks: %w", err)
	}

	for _, lock := range locks {
		payload, err := lock.ToJSON()
		if err != nil {
			return fmt.Errorf("encoding lock: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO locks (id, payload, created_at) VALUES (?, ?, ?)`,
			lock.ID(), string(payload), now(),
		); err != nil {
			return fmt.Errorf("inserting lock %s: %w", lock.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replacing locks: %w", err)
	}
	return nil
}

// GetLock reconstructs one persisted lock by ID.
func (s *Store) GetLock(ctx context.Context, id string) (entity.Lock, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM locks WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Lock{}, fmt.Errorf("%w: %s", ErrLockNotFound, id)
	}
	if err != nil {
		return entity.Lock{}, fmt.Errorf("loading lock: %w", err)
	}

	lock, err := entity.LockFromJSON([]byte(payload))
	if err != nil {
		return entity.Lock{}, fmt.Errorf("decoding lock: %w", err)
	}
	return lock, nil
}

// ListLocks reconstructs all persisted locks, ordered by label.
func (s *Store) ListLocks(ctx context.Context) ([]entity.Lock, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM locks ORDER BY json_extract(payload, '$.label')`)
	if err != nil {
		return nil, fmt.Errorf("listing locks: %w", err)
	}
	defer rows.Close()

	var locks []entity.Lock
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning lock: %w", err)
		}
		lock, err := entity.LockFromJSON([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decoding lock: %w", err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing locks: %w", err)
	}
	return locks, nil
}

// RemoveLock deletes one persisted lock by ID.
// Returns ErrLockNotFound when nothing was deleted.
func (s *Store) RemoveLock(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing lock: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotFound, id)
	}
	return nil
}

// Clear wipes the user session and the lock set. The audit trail is
// kept; it records what happened, not who is logged in.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.DeleteUser(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM locks`); err != nil {
		return fmt.Errorf("clearing locks: %w", err)
	}
	return nil
}

// UnlockEvent is one audit record of an unlock attempt.
type UnlockEvent struct {
	LockID     string    `json:"lock_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RecordUnlock appends an unlock attempt to the audit trail.
func (s *Store) RecordUnlock(ctx context.Context, lockID string, success bool, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unlock_events (lock_id, success, error, occurred_at) VALUES (?, ?, ?, ?)`,
		lockID, boolToInt(success), errMsg, now(),
	)
	if err != nil {
		return fmt.Errorf("recording unlock event: %w", err)
	}
	return nil
}

// RecentUnlocks returns the newest unlock events, newest first.
func (s *Store) RecentUnlocks(ctx context.Context, limit int) ([]UnlockEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lock_id, success, error, occurred_at FROM unlock_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unlock events: %w", err)
	}
	defer rows.Close()

	var events []UnlockEvent
	for rows.Next() {
		var ev UnlockEvent
		var success int
		var occurred string
		if err := rows.Scan(&ev.LockID, &success, &ev.Error, &occurred); err != nil {
			return nil, fmt.Errorf("scanning unlock event: %w", err)
		}
		ev.Success = success != 0
		ev.OccurredAt, _ = time.Parse(time.RFC3339, occurred)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing unlock events: %w", err)
	}
	return events, nil
}

// now returns the current UTC time in RFC3339.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// boolToInt converts for SQLite's integer booleans.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a primary-key conflict.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
