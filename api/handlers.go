package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/conversation"
	"github.com/quorralabs/quorra/pkg/generation"
	"github.com/quorralabs/quorra/pkg/pipeline"
	"github.com/quorralabs/quorra/pkg/prompt"
	"github.com/quorralabs/quorra/pkg/retrieval"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	// ExternalIdentity is the chat or user id the front-end knows the caller by.
	ExternalIdentity string `json:"external_identity"`

	// QueryText is the user's question.
	QueryText string `json:"query_text"`

	// MessageID is the front-end's idempotency key for this message. Optional.
	MessageID string `json:"message_id,omitempty"`
}

// AskResponse is the body of a successful POST /v1/ask.
type AskResponse struct {
	ConversationID string   `json:"conversation_id"`
	CompletionText string   `json:"completion_text"`
	Model          string   `json:"model,omitempty"`
	SourceLocators []string `json:"source_locators,omitempty"`
	Degraded       bool     `json:"degraded"`
}

// ConversationResponse is the body of GET /v1/conversations/:id.
type ConversationResponse struct {
	ConversationID string             `json:"conversation_id"`
	Turns          []ConversationTurn `json:"turns"`
}

// ConversationTurn is one dialogue turn in a conversation response.
type ConversationTurn struct {
	Seq       int64     `json:"seq"`
	MessageID string    `json:"message_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleAsk handles POST /v1/ask requests.
func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "invalid request body",
		})
	}

	if req.ExternalIdentity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "external_identity is required",
		})
	}
	if req.QueryText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query_text is required",
		})
	}

	resp, err := s.pipeline.Ask(c.Context(), &pipeline.Request{
		ExternalIdentity: req.ExternalIdentity,
		Query:            req.QueryText,
		MessageID:        req.MessageID,
	})
	if err != nil {
		return s.askError(c, err)
	}

	return c.JSON(AskResponse{
		ConversationID: resp.ConversationID,
		CompletionText: resp.Completion,
		Model:          resp.Model,
		SourceLocators: resp.Sources,
		Degraded:       resp.Degraded,
	})
}

// askError maps pipeline failures to HTTP statuses. Degraded answers are not
// errors; they arrive here only when the degraded-mode policy is disabled.
func (s *Server) askError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery), errors.Is(err, prompt.ErrBudgetExceeded):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})

	case errors.Is(err, generation.ErrGeneration):
		s.logger.Error("generation failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "generation service failed"})

	case errors.Is(err, retrieval.ErrUnavailable):
		s.logger.Error("retrieval unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "retrieval unavailable"})

	case errors.Is(err, conversation.ErrPersistence):
		s.logger.Error("conversation store failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "conversation store failed"})

	default:
		s.logger.Error("ask failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
}

// handleGetConversation handles GET /v1/conversations/:id requests.
// Query parameters:
//   - limit (optional): number of most recent turns to return
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "conversation id required"})
	}

	limit := c.QueryInt("limit", 0)
	turns, err := s.pipeline.History(c.Context(), id, limit)
	if err != nil {
		s.logger.Error("fetching conversation failed",
			zap.String("conversation_id", id),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "fetching conversation failed"})
	}

	out := ConversationResponse{
		ConversationID: id,
		Turns:          make([]ConversationTurn, 0, len(turns)),
	}
	for _, turn := range turns {
		out.Turns = append(out.Turns, ConversationTurn{
			Seq:       turn.Seq,
			MessageID: turn.MessageID,
			Role:      string(turn.Role),
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		})
	}

	return c.JSON(out)
}
