// Package inmemory provides an in-memory implementation of
// conversation.Store and session.Mapper. It is the local-dev and test
// backend; nothing survives process restart.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/quorralabs/quorra/pkg/conversation"
)

// Store implements conversation.Store and session.Mapper using in-process maps.
type Store struct {
	mu sync.RWMutex

	// turns maps conversation id -> appended turns in sequence order.
	turns map[string][]conversation.Turn

	// seen maps message id -> struct{} for idempotent appends.
	seen map[string]struct{}

	// sessions maps external identity -> conversation id.
	sessions map[string]string
}

// NewStore creates a new in-memory conversation store.
func NewStore() *Store {
	return &Store{
		turns:    make(map[string][]conversation.Turn),
		seen:     make(map[string]struct{}),
		sessions: make(map[string]string),
	}
}

// Append stores a turn, assigning the next sequence number for its
// conversation. Duplicate message ids are a no-op.
func (s *Store) Append(_ context.Context, turn *conversation.Turn) (bool, error) {
	if err := conversation.ValidateForAppend(turn); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[turn.MessageID]; ok {
		return false, nil
	}

	stored := *turn
	stored.Seq = int64(len(s.turns[turn.ConversationID])) + 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], stored)
	s.seen[turn.MessageID] = struct{}{}

	turn.Seq = stored.Seq
	turn.CreatedAt = stored.CreatedAt

	return true, nil
}

// Fetch returns the most recent limit turns in chronological order.
func (s *Store) Fetch(_ context.Context, conversationID string, limit int) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}

	// Return a copy to avoid callers mutating internal state.
	result := make([]conversation.Turn, len(all))
	copy(result, all)

	return result, nil
}

// Lookup returns the conversation id bound to an external identity.
func (s *Store) Lookup(_ context.Context, externalID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessions[externalID]
	return id, ok, nil
}

// Bind records the identity -> conversation mapping if none exists and
// returns the winning conversation id. Concurrent binds for the same
// identity all observe the first write.
func (s *Store) Bind(_ context.Context, externalID, conversationID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[externalID]; ok {
		return existing, nil
	}

	s.sessions[externalID] = conversationID
	return conversationID, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
