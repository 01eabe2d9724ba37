// Package api provides an HTTP API server for capturing items and driving
// their enrichment.
package api

import (
	"net/http"

	"github.com/papercomputeco/weave/pkg/batch"
	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/enrich/worker"
)

// OwnerHeader carries the caller's owner ID on every item route.
const OwnerHeader = "X-Owner-ID"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Processor runs processItem for POST /items/:id/process.
	Processor enrich.ItemProcessor

	// Batch runs processPending for POST /pending.
	Batch *batch.Orchestrator

	// Pool optionally processes newly created items in the background.
	Pool *worker.Pool

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
}
