// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/centimo/centimo/internal/models"
	"github.com/centimo/centimo/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
// Timestamps are stored as INTEGER unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SyncState returns the device's sync bookkeeping row, creating it with a
// fresh device ID on first call.
func (s *SQLiteStore) SyncState(ctx context.Context) (*models.SyncState, error) {
	state := &models.SyncState{}
	var lastSync int64
	err := s.db.QueryRowContext(ctx,
		"SELECT device_id, last_sync, room_code FROM sync_state WHERE rowid = 1",
	).Scan(&state.DeviceID, &lastSync, &state.RoomCode)
	if err == sql.ErrNoRows {
		state.DeviceID = uuid.New().String()
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO sync_state (rowid, device_id, last_sync, room_code) VALUES (1, ?, 0, '')",
			state.DeviceID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sync state: %w", err)
		}
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	state.LastSyncTimestamp = fromMillis(lastSync)
	return state, nil
}

// UpdateSyncState applies a partial update to the sync bookkeeping row.
func (s *SQLiteStore) UpdateSyncState(ctx context.Context, patch models.SyncStatePatch) error {
	// Make sure the row exists before patching it.
	if _, err := s.SyncState(ctx); err != nil {
		return err
	}
	if patch.LastSyncTimestamp != nil {
		_, err := s.db.ExecContext(ctx,
			"UPDATE sync_state SET last_sync = ? WHERE rowid = 1",
			toMillis(*patch.LastSyncTimestamp),
		)
		if err != nil {
			return fmt.Errorf("failed to update last sync timestamp: %w", err)
		}
	}
	if patch.RoomCode != nil {
		_, err := s.db.ExecContext(ctx,
			"UPDATE sync_state SET room_code = ? WHERE rowid = 1",
			*patch.RoomCode,
		)
		if err != nil {
			return fmt.Errorf("failed to update room code: %w", err)
		}
	}
	return nil
}

// toMillis converts a time to the unix-millisecond form stored in the database.
// The zero time maps to 0 so epoch-zero sync requests round-trip cleanly.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// fromMillis converts a stored unix-millisecond value back to a UTC time.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
