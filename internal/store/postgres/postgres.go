package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/caserelay/internal/store"
)

//go:embed schema.sql
var schema string

const connectTimeout = 30 * time.Second

// PostgresStore implements store.Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New opens a pool for databaseURL and waits until the server answers,
// retrying with exponential backoff for up to connectTimeout.
func New(ctx context.Context, databaseURL string, logger *zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectTimeout

	ping := func() error {
		return pool.Ping(ctx)
	}
	notify := func(err error, wait time.Duration) {
		if logger != nil {
			logger.Warn().Err(err).Dur("retry_in", wait).Msg("postgres not ready")
		}
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate applies the embedded schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateMessage persists a message and returns the stored record.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg store.NewMessage) (*store.Message, error) {
	query := `
		INSERT INTO collaboration_messages (session_id, sender_id, type, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	out := store.Message{
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Type:      msg.Type,
		Content:   msg.Content,
	}
	err := s.pool.QueryRow(ctx, query, msg.SessionID, msg.SenderID, string(msg.Type), msg.Content).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	out.CreatedAt = out.CreatedAt.UTC()

	return &out, nil
}

// ListMessages retrieves messages of a session in creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	limit = store.ClampLimit(limit)

	var (
		rows pgx.Rows
		err  error
	)
	if beforeID != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT id, session_id, sender_id, type, content, created_at
			FROM (
				SELECT id, session_id, sender_id, type, content, created_at
				FROM collaboration_messages
				WHERE session_id = $1 AND id < $2
				ORDER BY id DESC
				LIMIT $3
			) page
			ORDER BY id ASC
		`, sessionID, *beforeID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, session_id, sender_id, type, content, created_at
			FROM (
				SELECT id, session_id, sender_id, type, content, created_at
				FROM collaboration_messages
				WHERE session_id = $1
				ORDER BY id DESC
				LIMIT $2
			) page
			ORDER BY id ASC
		`, sessionID, limit)
	}
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
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
