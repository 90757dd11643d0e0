package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/pipeline"
)

// Server is the API server fronting the question-answering pipeline.
type Server struct {
	config   Config
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	app      *fiber.App
}

// NewServer creates a new API server. The pipeline is injected so serve
// commands can share it with other surfaces.
func NewServer(config Config, p *pipeline.Pipeline, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		pipeline: p,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/ask", s.handleAsk)
	app.Get("/v1/conversations/:id", s.handleGetConversation)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
