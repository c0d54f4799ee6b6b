package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/caserelay/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateMessage persists a message and returns the stored record.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg store.NewMessage) (*store.Message, error) {
	query := `
		INSERT INTO collaboration_messages (session_id, sender_id, type, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	createdAt := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, msg.SessionID, msg.SenderID, string(msg.Type), msg.Content, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessage(ctx, id)
}

func (s *SQLiteStore) getMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, session_id, sender_id, type, content, created_at
		FROM collaboration_messages
		WHERE id = ?
	`
	var (
		msg store.Message
		typ string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.SessionID,
		&msg.SenderID,
		&typ,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message not found: %w", err)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	msg.Type = store.MessageType(typ)

	return &msg, nil
}

// ListMessages retrieves messages of a session in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	limit = store.ClampLimit(limit)

	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT id, session_id, sender_id, type, content, created_at
			FROM collaboration_messages
			WHERE session_id = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{sessionID, *beforeID, limit}
	} else {
		query = `
			SELECT id, session_id, sender_id, type, content, created_at
			FROM collaboration_messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{sessionID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var (
			msg store.Message
			typ string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &typ, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = store.MessageType(typ)
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := 0; i < len(messages)/2; i++ {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}
