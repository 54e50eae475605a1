package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/logging"
)

// DB wraps a SQLite database connection with migration support.
type DB struct {
	sql *sql.DB
	log *logging.Logger
}

// Open opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func Open(path string, log *logging.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	db := &DB{sql: sqlDB, log: log.Sub("store.sqlite")}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.log.Info().Msg("closing database")
	return db.sql.Close()
}

// migrate runs all pending migrations.
func (db *DB) migrate() error {
	if _, err := db.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := db.isMigrationApplied(m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (db *DB) isMigrationApplied(version int) (bool, error) {
	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}

// SQLiteStore is a ConversationStore that survives restarts. Same contract
// as MemoryStore; histories and idle eviction live in SQLite instead.
type SQLiteStore struct {
	db      *DB
	turns   *keyedMutex
	idleTTL time.Duration

	stop chan struct{}
	once sync.Once
}

// NewSQLiteStore creates a durable store on an opened database. The store
// does not own the DB; close both when shutting down.
func NewSQLiteStore(db *DB, idleTTL time.Duration) *SQLiteStore {
	s := &SQLiteStore{
		db:      db,
		turns:   newKeyedMutex(),
		idleTTL: idleTTL,
		stop:    make(chan struct{}),
	}
	if idleTTL > 0 {
		go s.evictLoop()
	}
	return s
}

func (s *SQLiteStore) Create() (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.DateTime)

	_, err := s.db.sql.Exec(
		`INSERT INTO conversations (id, created_at, last_active) VALUES (?, ?, ?)`,
		id, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Append(id string, msg domain.Message) error {
	if !s.Exists(id) {
		return ErrNotFound
	}

	var toolCallsJSON sql.NullString
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encoding tool calls: %w", err)
		}
		toolCallsJSON = sql.NullString{String: string(data), Valid: true}
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.sql.Exec(
		`INSERT INTO messages (conversation_id, role, content, timestamp, tool_calls)
		 VALUES (?, ?, ?, ?, ?)`,
		id, msg.Role, msg.Content, ts.UTC().Format(time.DateTime), toolCallsJSON,
	)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}

	_, err = s.db.sql.Exec(
		`UPDATE conversations SET last_active = ? WHERE id = ?`,
		time.Now().UTC().Format(time.DateTime), id,
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(id string) ([]domain.Message, error) {
	if !s.Exists(id) {
		return nil, ErrNotFound
	}

	rows, err := s.db.sql.Query(
		`SELECT role, content, timestamp, tool_calls
		 FROM messages WHERE conversation_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var ts string
		var toolCallsJSON sql.NullString

		if err := rows.Scan(&msg.Role, &msg.Content, &ts, &toolCallsJSON); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Timestamp, _ = time.Parse(time.DateTime, ts)

		if toolCallsJSON.Valid && toolCallsJSON.String != "" {
			if err := json.Unmarshal([]byte(toolCallsJSON.String), &msg.ToolCalls); err != nil {
				s.db.log.Error().Err(err).Str("conversationId", id).Msg("corrupt tool_calls column")
			}
		}

		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) Exists(id string) bool {
	var count int
	if err := s.db.sql.QueryRow(
		`SELECT COUNT(*) FROM conversations WHERE id = ?`, id,
	).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

func (s *SQLiteStore) Delete(id string) error {
	// ON DELETE CASCADE drops the messages.
	if _, err := s.db.sql.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Acquire(id string) func() {
	return s.turns.Lock(id)
}

func (s *SQLiteStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *SQLiteStore) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.sweepIdle(time.Now())
			if err != nil {
				s.db.log.Error().Err(err).Msg("eviction sweep failed")
				continue
			}
			if n > 0 {
				s.db.log.Info().Int64("evicted", n).Msg("evicted idle conversations")
			}
		case <-s.stop:
			return
		}
	}
}

// sweepIdle drops conversations whose last activity predates now - idleTTL.
func (s *SQLiteStore) sweepIdle(now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-s.idleTTL).Format(time.DateTime)
	res, err := s.db.sql.Exec(`DELETE FROM conversations WHERE last_active < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
