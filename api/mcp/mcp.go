// Package mcp provides an MCP (Model Context Protocol) server exposing the
// weave processing operations as tools.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/batch"
	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/utils"
)

type Config struct {
	// Processor runs the process_item tool
	Processor enrich.ItemProcessor

	// Batch runs the process_pending tool (optional)
	Batch *batch.Orchestrator

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the processing tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "weave",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Processor == nil {
			return nil, errors.New("processor is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        processItemToolName,
			Description: processItemDescription,
		}, s.handleProcessItem)

		// Add the batch tool if an orchestrator is configured
		if c.Batch != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        processPendingToolName,
				Description: processPendingDescription,
			}, s.handleProcessPending)
		}
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
