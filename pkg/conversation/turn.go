// Package conversation defines the durable conversation log: immutable turns
// keyed by conversation, ordered by a store-assigned sequence number.
//
// Stores are append-only. A turn is never edited or deleted; replaying a
// conversation's turns in sequence order reconstructs the dialogue exactly as
// it occurred. Appends are idempotent on MessageID so callers can retry
// safely.
//
// Drivers are pluggable via configuration:
//
//	[storage]
//	driver = "sqlite"   # or "postgres", "memory"
package conversation

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one immutable message within a conversation.
type Turn struct {
	// ConversationID identifies the owning conversation.
	ConversationID string `json:"conversation_id"`

	// Seq is the store-assigned, per-conversation sequence number.
	// It is strictly increasing in append order and is the sort key for
	// every read. Zero until the turn has been appended.
	Seq int64 `json:"seq"`

	// MessageID is a globally unique identifier used for idempotent writes.
	MessageID string `json:"message_id"`

	// Role is who produced the turn.
	Role Role `json:"role"`

	// Content is the turn text.
	Content string `json:"content"`

	// Metadata is an opaque key/value map (e.g. source document references
	// recorded on assistant turns).
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the turn was appended.
	CreatedAt time.Time `json:"created_at"`
}
