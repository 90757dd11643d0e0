// Package sqlite provides a SQLite-backed conversation store.
//
// The schema is a single append-only turns table keyed by
// (conversation_id, seq) plus a sessions table mapping external identities
// to conversation ids. Sequence numbers are assigned inside the append
// transaction, so reads in seq order always reconstruct the dialogue.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quorralabs/quorra/pkg/conversation"
)

// Store implements conversation.Store and session.Mapper on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at dbPath and ensures the
// schema exists. Use ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			message_id TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating turns table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			external_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sessions table: %w", err)
	}

	return &Store{db: db}, nil
}

// Append stores a turn inside a transaction, assigning the next sequence
// number for its conversation. A duplicate message id is a no-op.
func (s *Store) Append(ctx context.Context, turn *conversation.Turn) (bool, error) {
	if err := conversation.ValidateForAppend(turn); err != nil {
		return false, err
	}

	metadata, err := json.Marshal(turn.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshaling metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: beginning transaction: %v", conversation.ErrPersistence, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM turns WHERE message_id = ?`, turn.MessageID,
	).Scan(&exists)

	switch {
	case err == nil:
		// Duplicate append, idempotent no-op.
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
		// New message, fall through to insert.
	default:
		return false, fmt.Errorf("%w: checking message id: %v", conversation.ErrPersistence, err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE conversation_id = ?`,
		turn.ConversationID,
	).Scan(&seq)
	if err != nil {
		return false, fmt.Errorf("%w: assigning sequence: %v", conversation.ErrPersistence, err)
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, seq, message_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, turn.ConversationID, seq, turn.MessageID, string(turn.Role), turn.Content, string(metadata), createdAt); err != nil {
		return false, fmt.Errorf("%w: inserting turn: %v", conversation.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: committing transaction: %v", conversation.ErrPersistence, err)
	}

	turn.Seq = seq
	turn.CreatedAt = createdAt

	return true, nil
}

// Fetch returns the most recent limit turns in chronological order.
// Unknown conversations yield an empty slice.
func (s *Store) Fetch(ctx context.Context, conversationID string, limit int) ([]conversation.Turn, error) {
	query := `
		SELECT conversation_id, seq, message_id, role, content, metadata, created_at
		FROM turns
		WHERE conversation_id = ?
		ORDER BY seq DESC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying turns: %v", conversation.ErrPersistence, err)
	}
	defer rows.Close()

	var reversed []conversation.Turn
	for rows.Next() {
		var turn conversation.Turn
		var role, metadata string
		if err := rows.Scan(&turn.ConversationID, &turn.Seq, &turn.MessageID, &role, &turn.Content, &metadata, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning turn: %v", conversation.ErrPersistence, err)
		}

		turn.Role = conversation.Role(role)
		if metadata != "" && metadata != "{}" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &turn.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for %s: %w", turn.MessageID, err)
			}
		}

		reversed = append(reversed, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading turns: %v", conversation.ErrPersistence, err)
	}

	// The window was read newest-first; restore chronological order.
	result := make([]conversation.Turn, len(reversed))
	for i, turn := range reversed {
		result[len(result)-1-i] = turn
	}

	return result, nil
}

// Lookup returns the conversation id bound to an external identity.
func (s *Store) Lookup(ctx context.Context, externalID string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id FROM sessions WHERE external_id = ?`, externalID,
	).Scan(&id)

	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: looking up session: %v", conversation.ErrPersistence, err)
	}
}

// Bind durably records the identity -> conversation mapping if none exists
// and returns the winning conversation id.
func (s *Store) Bind(ctx context.Context, externalID, conversationID string) (string, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (external_id, conversation_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
	`, externalID, conversationID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("%w: binding session: %v", conversation.ErrPersistence, err)
	}

	winner, ok, err := s.Lookup(ctx, externalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: session mapping not visible after bind", conversation.ErrPersistence)
	}

	return winner, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
