package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/enrich/worker"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
)

// CreateItemRequest is the body of POST /items.
type CreateItemRequest struct {
	Kind      notes.Kind `json:"kind"`
	Content   string     `json:"content"`
	SourceURL string     `json:"source_url,omitempty"`
	Title     string     `json:"title,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// CreateItemResponse is the body of a 202 from POST /items.
type CreateItemResponse struct {
	Item *notes.Item `json:"item"`

	// Queued is false when background processing could not be scheduled;
	// the item stays pending for the next batch run.
	Queued bool `json:"queued"`
}

// ConnectionsResponse lists the connections of one item.
type ConnectionsResponse struct {
	ItemID      string              `json:"item_id"`
	Connections []*notes.Connection `json:"connections"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleCreateItem stores a new item in processing and schedules it.
func (s *Server) handleCreateItem(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	var req CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Kind == "" {
		req.Kind = notes.KindText
	}
	if !req.Kind.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "kind must be text or link")
	}
	if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.SourceURL) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "content or source_url is required")
	}

	item := notes.NewItem(owner, req.Kind, req.Content, req.SourceURL, req.Title)
	item.Tags = notes.CleanList(req.Tags)

	if err := s.store.CreateItem(c.Context(), item); err != nil {
		return fmt.Errorf("creating item: %w", err)
	}

	queued := false
	if s.config.Pool != nil {
		queued = s.config.Pool.Enqueue(worker.Job{ItemID: item.ID, OwnerID: owner})
	}

	return c.Status(fiber.StatusAccepted).JSON(CreateItemResponse{Item: item, Queued: queued})
}

// handleGetItem returns one item owned by the caller.
func (s *Server) handleGetItem(c *fiber.Ctx) error {
	item, err := s.ownedItem(c)
	if err != nil {
		return err
	}
	return c.JSON(item)
}

// handleListConnections returns the connections of one item, strongest first.
func (s *Server) handleListConnections(c *fiber.Ctx) error {
	item, err := s.ownedItem(c)
	if err != nil {
		return err
	}

	conns, err := s.store.ListConnections(c.Context(), item.ID)
	if err != nil {
		return fmt.Errorf("listing connections of %s: %w", item.ID, err)
	}
	if conns == nil {
		conns = []*notes.Connection{}
	}

	return c.JSON(ConnectionsResponse{ItemID: item.ID, Connections: conns})
}

// handleProcessItem runs the pipeline over one item synchronously.
func (s *Server) handleProcessItem(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	res, err := s.config.Processor.Process(c.Context(), id, owner)
	if err != nil {
		return err
	}

	if res.AlreadyProcessing {
		return c.Status(fiber.StatusConflict).JSON(res)
	}
	return c.JSON(res)
}

// handleProcessPending runs the batch orchestrator for the caller.
func (s *Server) handleProcessPending(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	if s.config.Batch == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "batch processing is not configured")
	}

	report, err := s.config.Batch.ProcessPending(c.Context(), owner)
	if err != nil {
		return fmt.Errorf("processing pending items of %s: %w", owner, err)
	}

	return c.JSON(report)
}

func (s *Server) ownedItem(c *fiber.Ctx) (*notes.Item, error) {
	owner, err := ownerID(c)
	if err != nil {
		return nil, err
	}

	id := c.Params("id")
	item, err := s.store.GetItem(c.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, enrich.NewError(enrich.CategoryNotFound, err)
		}
		return nil, fmt.Errorf("getting item %s: %w", id, err)
	}

	if item.OwnerID != owner {
		return nil, enrich.NewError(enrich.CategoryForbidden, nil)
	}
	return item, nil
}

// ownerID reads the caller's owner ID from the request headers.
func ownerID(c *fiber.Ctx) (string, error) {
	owner := strings.TrimSpace(c.Get(OwnerHeader))
	if owner == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, OwnerHeader+" header is required")
	}
	return owner, nil
}
