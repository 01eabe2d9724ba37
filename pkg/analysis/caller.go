package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	// DefaultTimeout bounds every provider call.
	DefaultTimeout = 30 * time.Second
)

// CallFunc is the signature for an LLM inference call. Failures are
// returned as *Error.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// CallerConfig holds configuration for creating an LLM caller.
type CallerConfig struct {
	Provider string        // "openai", "anthropic", or "ollama"
	Model    string        // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey   string        // explicit API key (highest priority)
	BaseURL  string        // override base URL
	Timeout  time.Duration // per call, defaults to DefaultTimeout

	// HTTPClient defaults to a client without its own timeout; the
	// per call context deadline applies instead.
	HTTPClient *http.Client
}

// NewCaller creates a CallFunc based on the provided configuration.
// Resolution order for API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//
// A hosted provider without a key is a configuration error.
func NewCaller(cfg CallerConfig) (CallFunc, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(provider)
	}

	h := &httpCaller{
		provider: provider,
		model:    cfg.Model,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  cfg.Timeout,
		client:   cfg.HTTPClient,
	}
	if h.timeout <= 0 {
		h.timeout = DefaultTimeout
	}
	if h.client == nil {
		h.client = &http.Client{}
	}

	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, errors.New("no API key found for openai: set OPENAI_API_KEY or run 'weave auth openai'")
		}
		h.defaults("gpt-4o-mini", "https://api.openai.com")
		return h.openAI, nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, errors.New("no API key found for anthropic: set ANTHROPIC_API_KEY or run 'weave auth anthropic'")
		}
		h.defaults("claude-haiku-4-5-20251001", "https://api.anthropic.com")
		return h.anthropic, nil

	case ProviderOllama:
		h.defaults("llama3.2", "http://localhost:11434")
		return h.ollama, nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func resolveAPIKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

type httpCaller struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	timeout  time.Duration
	client   *http.Client
}

func (h *httpCaller) defaults(model, baseURL string) {
	if h.model == "" {
		h.model = model
	}
	if h.baseURL == "" {
		h.baseURL = baseURL
	}
}

// post sends a JSON request and returns the 200 response body.
func (h *httpCaller) post(ctx context.Context, path string, headers map[string]string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, FromTransport(h.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, FromTransport(h.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, FromStatus(h.provider, resp.StatusCode, string(body))
	}

	return body, nil
}

// --- OpenAI caller ---

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat *openAIRespFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (h *httpCaller) openAI(ctx context.Context, prompt string) (string, error) {
	body, err := h.post(ctx, "/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + h.apiKey},
		openAIRequest{
			Model:          h.model,
			Messages:       []chatMessage{{Role: "user", Content: prompt}},
			ResponseFormat: &openAIRespFormat{Type: "json_object"},
		},
	)
	if err != nil {
		return "", err
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", badResponse(h.provider, fmt.Errorf("unmarshal response: %w", err))
	}
	if result.Error != nil {
		return "", badResponse(h.provider, errors.New(result.Error.Message))
	}
	if len(result.Choices) == 0 {
		return "", badResponse(h.provider, errors.New("no choices returned"))
	}

	return result.Choices[0].Message.Content, nil
}

// --- Anthropic caller ---

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (h *httpCaller) anthropic(ctx context.Context, prompt string) (string, error) {
	body, err := h.post(ctx, "/v1/messages",
		map[string]string{
			"x-api-key":         h.apiKey,
			"anthropic-version": "2023-06-01",
		},
		anthropicRequest{
			Model:     h.model,
			MaxTokens: 1024,
			Messages: []chatMessage{
				{Role: "user", Content: prompt + "\n\nReturn ONLY valid JSON, no markdown or extra text."},
			},
		},
	)
	if err != nil {
		return "", err
	}

	var result anthropicResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", badResponse(h.provider, fmt.Errorf("unmarshal response: %w", err))
	}
	if result.Error != nil {
		return "", badResponse(h.provider, errors.New(result.Error.Message))
	}
	if len(result.Content) == 0 {
		return "", badResponse(h.provider, errors.New("no content returned"))
	}

	return result.Content[0].Text, nil
}

// --- Ollama caller ---

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

func (h *httpCaller) ollama(ctx context.Context, prompt string) (string, error) {
	body, err := h.post(ctx, "/api/chat", nil, ollamaChatRequest{
		Model:    h.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Format:   "json",
	})
	if err != nil {
		return "", err
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", badResponse(h.provider, fmt.Errorf("unmarshal response: %w", err))
	}
	if result.Error != "" {
		return "", badResponse(h.provider, errors.New(result.Error))
	}

	return result.Message.Content, nil
}
