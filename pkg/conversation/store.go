package conversation

import "context"

// Store defines the interface for persisting and reading conversation turns.
type Store interface {
	// Append stores a turn, assigning its Seq. Appending a turn whose
	// MessageID already exists is a no-op, not an error, so retried writes
	// are safe. Returns true if the turn was newly inserted.
	Append(ctx context.Context, turn *Turn) (bool, error)

	// Fetch returns the most recent limit turns of a conversation in
	// chronological order (oldest of the returned window first). A limit
	// of zero or less means no limit. Unknown conversations yield an
	// empty slice, not an error.
	Fetch(ctx context.Context, conversationID string, limit int) ([]Turn, error)

	// Close releases store resources.
	Close() error
}

// ValidateForAppend checks the invariants every driver enforces before
// writing a turn. Seq must be unset; the store assigns it.
func ValidateForAppend(turn *Turn) error {
	if turn == nil {
		return ErrNilTurn
	}

	if turn.ConversationID == "" || turn.MessageID == "" || !turn.Role.Valid() {
		return ErrInvalidTurn
	}

	return nil
}
