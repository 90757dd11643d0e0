// Package prompt builds the bounded context payload sent to the generation
// service: retrieved chunks first, then as much recent dialogue as the token
// budget allows, then the current query.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/conversation"
	"github.com/quorralabs/quorra/pkg/vector"
)

// ErrBudgetExceeded is returned when the query text alone does not fit the
// total context budget.
var ErrBudgetExceeded = errors.New("query exceeds context budget")

const (
	defaultTotalBudget = 3000
	defaultChunkFloor  = 1
)

// Config holds configuration for the context assembler.
type Config struct {
	// TotalBudget is the maximum token count of the assembled context
	// (defaults to 3000).
	TotalBudget int

	// ChunkFloor is the minimum number of retrieved chunks kept when the
	// budget is tight (defaults to 1). Even floor chunks yield if they alone
	// would exceed the budget.
	ChunkFloor int
}

// AssembledContext is the per-request, disposable output of Assemble. It is
// never persisted.
type AssembledContext struct {
	// System is the system instruction passed through to the generator.
	System string

	// Prompt is the full assembled text payload.
	Prompt string

	// Locators cites the origin of each included chunk, most relevant first.
	Locators []vector.SourceLocator

	// TokenCount is the estimated token total of query, chunks, and history.
	TokenCount int

	ChunkCount   int
	HistoryCount int
}

// EstimateTokens approximates the token count of text as one token per four
// bytes, rounded up. Chunks carry exact counts from ingestion; this estimate
// covers queries and dialogue turns.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TurnTokens returns the estimated token count of a single dialogue turn.
func TurnTokens(turn conversation.Turn) int {
	return EstimateTokens(turn.Content)
}

// Trim keeps the newest suffix of turns whose combined token count fits
// budget. Input and output are chronological. If even the newest turn exceeds
// the budget the result is empty; turn content is never truncated.
func Trim(turns []conversation.Turn, budget int) []conversation.Turn {
	kept := 0
	total := 0
	for i := len(turns) - 1; i >= 0; i-- {
		cost := TurnTokens(turns[i])
		if total+cost > budget {
			break
		}
		total += cost
		kept++
	}
	return turns[len(turns)-kept:]
}

// FormatChunk renders a chunk with its source label for inclusion in the
// prompt, e.g. "[handbook.pdf p.12] text".
func FormatChunk(chunk vector.Chunk) string {
	return fmt.Sprintf("[%s] %s", chunk.Source.String(), chunk.Text)
}

func chunkTokens(chunk vector.Chunk) int {
	if chunk.TokenCount > 0 {
		return chunk.TokenCount
	}
	return EstimateTokens(chunk.Text)
}

// Assembler merges retrieved chunks and trimmed history into a single bounded
// prompt.
type Assembler struct {
	config Config
	logger *zap.Logger
}

// NewAssembler creates an assembler with the given budget configuration.
func NewAssembler(config Config, logger *zap.Logger) *Assembler {
	if config.TotalBudget <= 0 {
		config.TotalBudget = defaultTotalBudget
	}
	if config.ChunkFloor <= 0 {
		config.ChunkFloor = defaultChunkFloor
	}

	return &Assembler{
		config: config,
		logger: logger,
	}
}

// Assemble produces the context payload for one request. Allocation order:
// the query is always included, chunks are kept up to the configured floor
// and dropped lowest-score-first when over budget, and history fills whatever
// remains via Trim. chunks must arrive most relevant first; history must be
// chronological.
func (a *Assembler) Assemble(query, system string, chunks []vector.QueryResult, history []conversation.Turn) (*AssembledContext, error) {
	queryTokens := EstimateTokens(query)
	if queryTokens > a.config.TotalBudget {
		return nil, fmt.Errorf("%w: query is %d tokens, budget is %d", ErrBudgetExceeded, queryTokens, a.config.TotalBudget)
	}

	remaining := a.config.TotalBudget - queryTokens

	kept := chunks
	chunkTotal := 0
	for _, result := range kept {
		chunkTotal += chunkTokens(result.Chunk)
	}

	// Drop from the tail (lowest score) while over budget. Chunks up to the
	// floor are never displaced by history, but the total budget is a hard
	// cap: a floor-sized set that still does not fit keeps shrinking.
	for len(kept) > 0 && chunkTotal > remaining {
		last := kept[len(kept)-1]
		chunkTotal -= chunkTokens(last.Chunk)
		kept = kept[:len(kept)-1]
	}

	historyBudget := remaining - chunkTotal
	trimmed := Trim(history, historyBudget)
	historyTotal := 0
	for _, turn := range trimmed {
		historyTotal += TurnTokens(turn)
	}

	locators := make([]vector.SourceLocator, 0, len(kept))
	for _, result := range kept {
		locators = append(locators, result.Source)
	}

	prompt := a.render(query, kept, trimmed)

	a.logger.Debug("assembled context",
		zap.Int("chunks", len(kept)),
		zap.Int("chunks_dropped", len(chunks)-len(kept)),
		zap.Int("chunk_floor", a.config.ChunkFloor),
		zap.Int("history_turns", len(trimmed)),
		zap.Int("token_count", queryTokens+chunkTotal+historyTotal),
	)

	return &AssembledContext{
		System:       system,
		Prompt:       prompt,
		Locators:     locators,
		TokenCount:   queryTokens + chunkTotal + historyTotal,
		ChunkCount:   len(kept),
		HistoryCount: len(trimmed),
	}, nil
}

func (a *Assembler) render(query string, chunks []vector.QueryResult, history []conversation.Turn) string {
	var b strings.Builder

	if len(chunks) > 0 {
		b.WriteString("Context:\n")
		for _, result := range chunks {
			b.WriteString(FormatChunk(result.Chunk))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation:\n")
		for _, turn := range history {
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(query)

	return b.String()
}
