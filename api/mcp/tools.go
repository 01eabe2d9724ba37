package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/notes"
)

var (
	processItemToolName    = "process_item"
	processItemDescription = "Enrich one saved note: summarize it, tag its topics, and connect it to related notes. Returns the note status and its connections."

	processPendingToolName    = "process_pending"
	processPendingDescription = "Process every note of an owner that is missing analysis or previously failed, one at a time. Returns counts of processed, failed and skipped notes."
)

// ProcessItemInput represents the input arguments for the process_item tool.
type ProcessItemInput struct {
	ItemID  string `json:"item_id" jsonschema:"the ID of the note to process"`
	OwnerID string `json:"owner_id" jsonschema:"the owner of the note"`
}

// Connection is one related note in a tool result.
type Connection struct {
	ItemID      string  `json:"item_id"`
	Similarity  float64 `json:"similarity"`
	Explanation string  `json:"explanation"`
}

// ProcessItemOutput represents the output of the process_item tool.
type ProcessItemOutput struct {
	ItemID            string       `json:"item_id"`
	Status            notes.Status `json:"status"`
	AlreadyProcessing bool         `json:"already_processing,omitempty"`
	Title             string       `json:"title,omitempty"`
	Summary           string       `json:"summary,omitempty"`
	Topics            []string     `json:"topics,omitempty"`
	Connections       []Connection `json:"connections"`
}

// ProcessPendingInput represents the input arguments for the process_pending tool.
type ProcessPendingInput struct {
	OwnerID string `json:"owner_id" jsonschema:"the owner whose pending notes are processed"`
}

// ProcessPendingOutput represents the output of the process_pending tool.
type ProcessPendingOutput struct {
	Success   bool   `json:"success"`
	Mode      string `json:"mode"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	LastError string `json:"last_error,omitempty"`
}

// handleProcessItem processes a process_item request.
func (s *Server) handleProcessItem(ctx context.Context, _ *mcp.CallToolRequest, input ProcessItemInput) (*mcp.CallToolResult, ProcessItemOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP process_item request",
		zap.String("item_id", input.ItemID),
		zap.String("owner_id", input.OwnerID),
	)

	if input.ItemID == "" || input.OwnerID == "" {
		return errorResult("item_id and owner_id are required"), ProcessItemOutput{}, nil
	}

	res, err := s.config.Processor.Process(ctx, input.ItemID, input.OwnerID)
	if err != nil {
		var perr *enrich.Error
		if errors.As(err, &perr) {
			return errorResult(perr.Message), ProcessItemOutput{}, nil
		}
		logger.Error("process_item failed", zap.Error(err))
		return errorResult("Processing failed. Please try again."), ProcessItemOutput{}, nil
	}

	output := buildProcessItemOutput(input.ItemID, res)
	return textResult(logger, output), output, nil
}

// handleProcessPending processes a process_pending request.
func (s *Server) handleProcessPending(ctx context.Context, _ *mcp.CallToolRequest, input ProcessPendingInput) (*mcp.CallToolResult, ProcessPendingOutput, error) {
	logger := s.config.Logger

	if input.OwnerID == "" {
		return errorResult("owner_id is required"), ProcessPendingOutput{}, nil
	}

	report, err := s.config.Batch.ProcessPending(ctx, input.OwnerID)
	if err != nil {
		logger.Error("process_pending failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to start batch: %v", err)), ProcessPendingOutput{}, nil
	}

	output := ProcessPendingOutput{
		Success:   report.Success,
		Mode:      string(report.Mode),
		Total:     report.Total,
		Processed: report.Processed,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
		LastError: report.LastError,
	}
	return textResult(logger, output), output, nil
}

func buildProcessItemOutput(itemID string, res *enrich.Result) ProcessItemOutput {
	output := ProcessItemOutput{
		ItemID:            itemID,
		Status:            res.Status,
		AlreadyProcessing: res.AlreadyProcessing,
		Connections:       make([]Connection, 0, len(res.Connections)),
	}

	if res.Item != nil {
		output.Title = res.Item.Title
		output.Summary = res.Item.Summary
		output.Topics = res.Item.Topics
	}

	for _, c := range res.Connections {
		output.Connections = append(output.Connections, Connection{
			ItemID:      c.Other(itemID),
			Similarity:  c.Similarity,
			Explanation: c.Explanation,
		})
	}
	return output
}

// textResult serializes the structured output as JSON for the text field.
// Tools returning structured content also return serialized JSON in a
// TextContent block for backwards compatibility.
func textResult(logger *zap.Logger, output any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal tool output", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
