package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeAnswerProduced is emitted after a pipeline run persists its
	// turns and returns an answer.
	EventTypeAnswerProduced = "quorra.answer.produced"
)

// AnswerProducedEvent is a transport-neutral event payload for a completed
// question-answering run.
type AnswerProducedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ConversationID     string `json:"conversation_id"`
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`

	// Model is the generation model that produced the completion.
	Model string `json:"model"`

	// Degraded marks an answer produced without retrieval context.
	Degraded bool `json:"degraded"`

	// Sources cites the chunk locators included in the context.
	Sources []string `json:"sources,omitempty"`

	ContextTokens int   `json:"context_tokens"`
	DurationMs    int64 `json:"duration_ms"`
}
