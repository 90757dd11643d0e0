// Package session maps external identities (chat/user ids) to durable
// conversation ids and serializes pipeline executions per conversation.
//
// The Manager is the only stateful lookup in the pipeline. The mapping is
// durable via a Mapper (backed by the configured conversation store); the
// per-conversation locks are process-local, which is sufficient because a
// conversation's requests are routed to a single pipeline instance.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyIdentity is returned when Resolve is called without an external identity.
var ErrEmptyIdentity = errors.New("empty external identity")

// Mapper durably stores the external identity -> conversation id mapping.
// Bind must be atomic: when two callers race to bind the same identity, both
// observe the same winning conversation id. The conversation store drivers
// implement this interface alongside conversation.Store.
type Mapper interface {
	// Lookup returns the conversation id bound to an external identity,
	// and whether a binding exists.
	Lookup(ctx context.Context, externalID string) (string, bool, error)

	// Bind records the mapping if none exists and returns the winning
	// conversation id (the caller's on success, the earlier winner on a race).
	Bind(ctx context.Context, externalID, conversationID string) (string, error)
}

// Manager resolves external identities to conversation ids and hands out
// per-conversation locks.
type Manager struct {
	mapper Mapper
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*convLock
}

// convLock is a refcounted binary semaphore for one conversation.
type convLock struct {
	sem  chan struct{}
	refs int
}

// NewManager creates a session manager over the given durable mapper.
func NewManager(mapper Mapper, logger *zap.Logger) *Manager {
	return &Manager{
		mapper: mapper,
		logger: logger,
		locks:  make(map[string]*convLock),
	}
}

// Resolve returns the conversation id for an external identity, allocating
// and durably recording a new one on first contact. If the durable write
// fails, no conversation id is returned and no partial state remains.
func (m *Manager) Resolve(ctx context.Context, externalID string) (string, error) {
	if externalID == "" {
		return "", ErrEmptyIdentity
	}

	id, ok, err := m.mapper.Lookup(ctx, externalID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	candidate := uuid.NewString()
	winner, err := m.mapper.Bind(ctx, externalID, candidate)
	if err != nil {
		return "", err
	}

	if winner == candidate {
		m.logger.Info("created conversation",
			zap.String("external_id", externalID),
			zap.String("conversation_id", winner),
		)
	}

	return winner, nil
}

// Acquire takes the per-conversation lock, waiting until the previous
// pipeline execution for the same conversation completes. The returned
// release function must be called exactly once. Acquisition aborts when the
// context is done.
func (m *Manager) Acquire(ctx context.Context, conversationID string) (func(), error) {
	m.mu.Lock()
	lock, ok := m.locks[conversationID]
	if !ok {
		lock = &convLock{sem: make(chan struct{}, 1)}
		m.locks[conversationID] = lock
	}
	lock.refs++
	m.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			m.release(conversationID, lock)
		}, nil
	case <-ctx.Done():
		m.release(conversationID, lock)
		return nil, ctx.Err()
	}
}

// release drops one reference and evicts the lock entry once unused, so the
// lock table stays proportional to in-flight conversations.
func (m *Manager) release(conversationID string, lock *convLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, conversationID)
	}
}
