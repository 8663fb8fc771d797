// Package prefs keeps small client-side preferences in a local SQLite file so
// they survive restarts.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// StateDB is a per-user key/value store backed by dir/state.db.
type StateDB struct {
	db *sql.DB
}

var _ workout.SelectionCache = (*StateDB)(nil)

// OpenStateDB opens (or creates) the SQLite state database at dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
		user_id    INTEGER NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, key)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating preferences table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Key names one preference.
type Key string

const (
	KeySelectedRoutine Key = "selected_routine"
	KeyLastUser        Key = "last_user"
)

// Lookup returns the stored value; ok is false when the key is absent.
func (s *StateDB) Lookup(ctx context.Context, userID int, key Key) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE user_id = ? AND key = ?`,
		userID, string(key),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

// Store writes a value, replacing any previous one.
func (s *StateDB) Store(ctx context.Context, userID int, key Key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO preferences (user_id, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		userID, string(key), value,
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *StateDB) Delete(ctx context.Context, userID int, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM preferences WHERE user_id = ? AND key = ?`,
		userID, string(key),
	)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Get returns the cached selected routine. A value that does not parse is
// dropped and reported as a miss.
func (s *StateDB) Get(ctx context.Context, userID int) (uuid.UUID, bool, error) {
	raw, ok, err := s.Lookup(ctx, userID, KeySelectedRoutine)
	if err != nil || !ok {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, s.Delete(ctx, userID, KeySelectedRoutine)
	}
	return id, true, nil
}

// Set caches the selected routine.
func (s *StateDB) Set(ctx context.Context, userID int, routineID uuid.UUID) error {
	return s.Store(ctx, userID, KeySelectedRoutine, routineID.String())
}

// Clear forgets the selected routine.
func (s *StateDB) Clear(ctx context.Context, userID int) error {
	return s.Delete(ctx, userID, KeySelectedRoutine)
}

// LastUser returns the user id the client last signed in as. The value is
// kept under user 0 since it is not owned by any user.
func (s *StateDB) LastUser(ctx context.Context) (int, bool, error) {
	raw, ok, err := s.Lookup(ctx, 0, KeyLastUser)
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, s.Delete(ctx, 0, KeyLastUser)
	}
	return id, true, nil
}

// SetLastUser records the current user id.
func (s *StateDB) SetLastUser(ctx context.Context, userID int) error {
	return s.Store(ctx, 0, KeyLastUser, strconv.Itoa(userID))
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}
