package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/storage"
)

// Server is the API server for capturing and enriching items
type Server struct {
	config Config
	store  storage.Driver
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The store is injected to allow sharing with the worker pool and the
// batch orchestrator.
func NewServer(config Config, store storage.Driver, logger *zap.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("storage driver is required")
	}
	if config.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		store:  store,
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app = app

	app.Get("/ping", s.handlePing)
	app.Post("/items", s.handleCreateItem)
	app.Get("/items/:id", s.handleGetItem)
	app.Get("/items/:id/connections", s.handleListConnections)
	app.Post("/items/:id/process", s.handleProcessItem)
	app.Post("/pending", s.handleProcessPending)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Handler exposes the server as a net/http handler.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
