package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore persists the window of one session in SQLite.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	sessionID string
	capacity  int
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path, sessionID string, capacity int) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenSQLite")
	defer timer.Stop()

	if sessionID == "" {
		sessionID = "default"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}

	logging.Store("window store at %s (session %s)", path, sessionID)
	return &SQLiteStore{db: db, path: path, sessionID: sessionID, capacity: capacity}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	// m.Close would close db through the driver; the store keeps using it.

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// SessionID returns the conversation this store persists.
func (s *SQLiteStore) SessionID() string { return s.sessionID }

// Load returns the stored window in ID order.
func (s *SQLiteStore) Load(ctx context.Context) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at, agent_id, agent_name, avatar
		FROM messages WHERE session_id = ? ORDER BY id`, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load window: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var (
			m       types.Message
			role    string
			created int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &created, &m.AgentID, &m.AgentName, &m.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = types.Role(role)
		m.Timestamp = time.UnixMilli(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trim(out, s.capacity), nil
}

// Save replaces the stored window in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, window []types.Message) error {
	window = trim(window, s.capacity)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, s.sessionID); err != nil {
		return fmt.Errorf("failed to clear window: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session_id, id, role, content, created_at, agent_id, agent_name, avatar)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range window {
		if _, err := stmt.ExecContext(ctx, s.sessionID, m.ID, string(m.Role), m.Content,
			m.Timestamp.UnixMilli(), m.AgentID, m.AgentName, m.Avatar); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", m.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, updated_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		s.sessionID, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit window: %w", err)
	}
	logging.StoreDebug("saved %d messages for session %s", len(window), s.sessionID)
	return nil
}

// Sessions lists stored session IDs, most recently updated first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
