// Package client is an HTTP client for the weave API. Client implements
// enrich.ItemProcessor so a batch run can drive a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/weave/api"
	"github.com/papercomputeco/weave/pkg/batch"
	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/notes"
)

// DefaultTimeout bounds a single request. Processing runs several AI calls,
// so it is longer than any single call timeout.
const DefaultTimeout = 2 * time.Minute

// Client talks to a weave API server on behalf of one owner.
type Client struct {
	baseURL    string
	ownerID    string
	httpClient *http.Client
}

// New creates a Client for the server at baseURL. A nil httpClient uses
// one with DefaultTimeout.
func New(baseURL, ownerID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		ownerID:    ownerID,
		httpClient: httpClient,
	}
}

// Process asks the server to process one item. Categorized server failures
// come back as *enrich.Error; transport failures and unexpected responses
// are returned uncategorized.
func (c *Client) Process(ctx context.Context, itemID, ownerID string) (*enrich.Result, error) {
	resp, err := c.do(ctx, http.MethodPost, "/items/"+itemID+"/process", ownerID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict:
		var res enrich.Result
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, fmt.Errorf("decoding process response: %w", err)
		}
		return &res, nil
	default:
		return nil, responseError(resp)
	}
}

// CreateItem captures a new item on the server.
func (c *Client) CreateItem(ctx context.Context, req api.CreateItemRequest) (*api.CreateItemResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/items", c.ownerID, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, responseError(resp)
	}

	var out api.CreateItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding create response: %w", err)
	}
	return &out, nil
}

// GetItem fetches one item.
func (c *Client) GetItem(ctx context.Context, itemID string) (*notes.Item, error) {
	var item notes.Item
	if err := c.getJSON(ctx, "/items/"+itemID, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListConnections fetches the connections of one item.
func (c *Client) ListConnections(ctx context.Context, itemID string) ([]*notes.Connection, error) {
	var out api.ConnectionsResponse
	if err := c.getJSON(ctx, "/items/"+itemID+"/connections", &out); err != nil {
		return nil, err
	}
	return out.Connections, nil
}

// ProcessPending asks the server to run a batch over the owner's pending
// items.
func (c *Client) ProcessPending(ctx context.Context) (*batch.Report, error) {
	resp, err := c.do(ctx, http.MethodPost, "/pending", c.ownerID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var report batch.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decoding batch report: %w", err)
	}
	return &report, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, c.ownerID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, ownerID string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.OwnerHeader, ownerID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// responseError turns a non-2xx response into an error. Bodies carrying a
// failure category become *enrich.Error with the server's message.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Category != "" {
		e := enrich.NewError(body.Category, fmt.Errorf("server returned status %d", resp.StatusCode))
		if body.Error != "" {
			e.Message = body.Error
		}
		return e
	}

	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, msg)
}

var _ enrich.ItemProcessor = (*Client)(nil)
