// Package pipeline composes session resolution, history fetch, retrieval,
// context assembly, generation, and persistence into the request/response
// contract exposed to front-ends.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/conversation"
	"github.com/quorralabs/quorra/pkg/eventstream"
	"github.com/quorralabs/quorra/pkg/generation"
	"github.com/quorralabs/quorra/pkg/prompt"
	"github.com/quorralabs/quorra/pkg/retrieval"
	"github.com/quorralabs/quorra/pkg/session"
	"github.com/quorralabs/quorra/pkg/vector"
)

// ErrEmptyQuery is returned when a request carries no query text.
var ErrEmptyQuery = errors.New("empty query text")

const (
	defaultHistoryLimit  = 20
	defaultMaxConcurrent = 8
)

// Config holds configuration for the pipeline.
type Config struct {
	// HistoryLimit is the number of recent turns fetched per request
	// (defaults to 20). Trimming to the token budget happens later.
	HistoryLimit int

	// TopK is the number of chunks requested from retrieval; zero uses the
	// retrieval client's default.
	TopK int

	// SystemPrompt is the instruction passed to the generator on every
	// request.
	SystemPrompt string

	// MaxConcurrent caps in-flight requests across all conversations
	// (defaults to 8), respecting the external services' own limits.
	MaxConcurrent int

	// DegradedMode, when true, answers from history alone if retrieval is
	// unavailable instead of failing the request. The degradation is marked
	// on the response and the published event.
	DegradedMode bool
}

// Request is one inbound question.
type Request struct {
	// ExternalIdentity is the chat or user id from the front-end.
	ExternalIdentity string

	// Query is the user's question text.
	Query string

	// MessageID is the front-end's idempotency key for the user turn. A new
	// id is assigned when empty.
	MessageID string
}

// Response is the pipeline's answer.
type Response struct {
	ConversationID string
	Completion     string
	Model          string

	// Sources cites the chunk locators that grounded the answer.
	Sources []string

	// Degraded marks an answer produced without retrieval context.
	Degraded bool
}

// Pipeline orchestrates one question-answering run per call. All methods are
// safe for concurrent use.
type Pipeline struct {
	sessions  *session.Manager
	store     conversation.Store
	retriever *retrieval.Client
	assembler *prompt.Assembler
	generator *generation.Client
	events    eventstream.Publisher
	config    Config
	logger    *zap.Logger
	sem       chan struct{}
}

// New creates a pipeline over the given components.
func New(
	sessions *session.Manager,
	store conversation.Store,
	retriever *retrieval.Client,
	assembler *prompt.Assembler,
	generator *generation.Client,
	events eventstream.Publisher,
	config Config,
	logger *zap.Logger,
) *Pipeline {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaultHistoryLimit
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaultMaxConcurrent
	}

	return &Pipeline{
		sessions:  sessions,
		store:     store,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		events:    events,
		config:    config,
		logger:    logger,
		sem:       make(chan struct{}, config.MaxConcurrent),
	}
}

// Ask runs the full pipeline for one request. Turns are appended only after
// generation succeeds; a failure or cancellation anywhere earlier leaves the
// conversation unchanged.
func (p *Pipeline) Ask(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Query == "" {
		return nil, ErrEmptyQuery
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()

	conversationID, err := p.sessions.Resolve(ctx, req.ExternalIdentity)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	release, err := p.sessions.Acquire(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("acquiring conversation: %w", err)
	}
	defer release()

	history, results, degraded, err := p.gather(ctx, conversationID, req.Query)
	if err != nil {
		return nil, err
	}

	assembled, err := p.assembler.Assemble(req.Query, p.config.SystemPrompt, results, history)
	if err != nil {
		return nil, fmt.Errorf("assembling context: %w", err)
	}

	genResp, err := p.generator.Generate(ctx, &generation.Request{
		System: assembled.System,
		Prompt: assembled.Prompt,
	})
	if err != nil {
		return nil, err
	}

	// A cancelled caller never gets the response; recording the exchange
	// would leave an assistant turn with no delivered answer.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	sources := make([]string, 0, len(assembled.Locators))
	for _, locator := range assembled.Locators {
		sources = append(sources, locator.String())
	}

	userMessageID, assistantMessageID, err := p.persist(ctx, conversationID, req, genResp.Text, sources)
	if err != nil {
		return nil, err
	}

	p.publish(ctx, &eventstream.AnswerProducedEvent{
		SchemaVersion:      eventstream.SchemaVersionV1,
		EventType:          eventstream.EventTypeAnswerProduced,
		EventID:            uuid.NewString(),
		EmittedAt:          time.Now().UTC(),
		ConversationID:     conversationID,
		UserMessageID:      userMessageID,
		AssistantMessageID: assistantMessageID,
		Model:              genResp.Model,
		Degraded:           degraded,
		Sources:            sources,
		ContextTokens:      assembled.TokenCount,
		DurationMs:         time.Since(start).Milliseconds(),
	})

	p.logger.Info("answer produced",
		zap.String("conversation_id", conversationID),
		zap.Bool("degraded", degraded),
		zap.Int("chunks", assembled.ChunkCount),
		zap.Int("history_turns", assembled.HistoryCount),
		zap.Duration("duration", time.Since(start)),
	)

	return &Response{
		ConversationID: conversationID,
		Completion:     genResp.Text,
		Model:          genResp.Model,
		Sources:        sources,
		Degraded:       degraded,
	}, nil
}

// History returns the most recent limit turns of a conversation.
func (p *Pipeline) History(ctx context.Context, conversationID string, limit int) ([]conversation.Turn, error) {
	if limit <= 0 {
		limit = p.config.HistoryLimit
	}
	return p.store.Fetch(ctx, conversationID, limit)
}

// gather runs the history fetch and the retrieval in parallel. Retrieval
// exhaustion is absorbed into degraded mode when the policy allows it; a
// history failure always fails the request.
func (p *Pipeline) gather(ctx context.Context, conversationID, query string) ([]conversation.Turn, []vector.QueryResult, bool, error) {
	var (
		wg          sync.WaitGroup
		history     []conversation.Turn
		historyErr  error
		results     []vector.QueryResult
		retrieveErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		history, historyErr = p.store.Fetch(ctx, conversationID, p.config.HistoryLimit)
	}()
	go func() {
		defer wg.Done()
		results, retrieveErr = p.retriever.Retrieve(ctx, query, p.config.TopK)
	}()
	wg.Wait()

	if historyErr != nil {
		return nil, nil, false, fmt.Errorf("fetching history: %w", historyErr)
	}

	degraded := false
	if retrieveErr != nil {
		if !p.config.DegradedMode || !errors.Is(retrieveErr, retrieval.ErrUnavailable) {
			return nil, nil, false, fmt.Errorf("retrieving chunks: %w", retrieveErr)
		}
		degraded = true
		results = nil
		p.logger.Warn("retrieval unavailable, answering from history only",
			zap.String("conversation_id", conversationID),
			zap.Error(retrieveErr),
		)
	}

	return filterDialogue(history), results, degraded, nil
}

// persist appends the user turn and the assistant turn together, after
// generation. A failure between the two appends leaves a detectable gap: the
// user turn exists with no assistant reply.
func (p *Pipeline) persist(ctx context.Context, conversationID string, req *Request, completion string, sources []string) (string, string, error) {
	userMessageID := req.MessageID
	if userMessageID == "" {
		userMessageID = uuid.NewString()
	}
	assistantMessageID := uuid.NewString()
	now := time.Now().UTC()

	var metadata map[string]string
	if len(sources) > 0 {
		metadata = map[string]string{"sources": strings.Join(sources, "; ")}
	}

	if _, err := p.store.Append(ctx, &conversation.Turn{
		ConversationID: conversationID,
		MessageID:      userMessageID,
		Role:           conversation.RoleUser,
		Content:        req.Query,
		CreatedAt:      now,
	}); err != nil {
		return "", "", fmt.Errorf("appending user turn: %w", err)
	}

	if _, err := p.store.Append(ctx, &conversation.Turn{
		ConversationID: conversationID,
		MessageID:      assistantMessageID,
		Role:           conversation.RoleAssistant,
		Content:        completion,
		Metadata:       metadata,
		CreatedAt:      now,
	}); err != nil {
		p.logger.Error("assistant turn append failed after user turn",
			zap.String("conversation_id", conversationID),
			zap.String("user_message_id", userMessageID),
			zap.Error(err),
		)
		return "", "", fmt.Errorf("appending assistant turn: %w", err)
	}

	return userMessageID, assistantMessageID, nil
}

// publish is best effort: the answer already exists, so a stream failure is
// logged, not returned.
func (p *Pipeline) publish(ctx context.Context, event *eventstream.AnswerProducedEvent) {
	if err := p.events.PublishAnswer(ctx, event); err != nil {
		p.logger.Error("publishing answer event failed",
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err),
		)
	}
}

// filterDialogue drops system turns from fetched history; the system
// instruction is supplied per request, not replayed from the log.
func filterDialogue(turns []conversation.Turn) []conversation.Turn {
	kept := turns[:0:0]
	for _, turn := range turns {
		if turn.Role != conversation.RoleSystem {
			kept = append(kept, turn)
		}
	}
	return kept
}
