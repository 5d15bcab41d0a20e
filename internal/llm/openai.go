package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/httpkit"
)

// maxErrorBody caps how much of an upstream error response is included
// in error messages.
const maxErrorBody = 2048

// OpenAIClient speaks the OpenAI-compatible chat completions API.
// It works against OpenAI itself, OpenRouter, and Ollama's /v1
// compatibility endpoint, or anything that accepts the same wire format.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
// baseURL is the API root including the version prefix
// (e.g. "https://api.openai.com/v1"). timeout bounds each request;
// zero means no client-side timeout (the caller's context governs).
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(timeout)),
		logger:     logger.With("component", "llm"),
	}
}

// chatCompletionRequest is the wire request for POST /chat/completions.
type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// chatCompletionResponse is the wire response.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	wireReq := chatCompletionRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		wireReq.Tools = req.Tools
		wireReq.ToolChoice = "auto"
	}

	jsonData, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "chat completion request",
		"payload", string(jsonData),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, maxErrorBody)
		return nil, fmt.Errorf("provider error %d: %s", resp.StatusCode, body)
	}

	var wireResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(wireResp.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices (id %s)", wireResp.ID)
	}

	choice := wireResp.Choices[0]
	c.logger.Debug("chat completion",
		"model", wireResp.Model,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
		"input_tokens", wireResp.Usage.PromptTokens,
		"output_tokens", wireResp.Usage.CompletionTokens,
		"duration", time.Since(start).Truncate(time.Millisecond),
	)

	return &ChatResponse{
		Model:        wireResp.Model,
		Message:      choice.Message,
		FinishReason: choice.FinishReason,
		InputTokens:  wireResp.Usage.PromptTokens,
		OutputTokens: wireResp.Usage.CompletionTokens,
	}, nil
}

// Ping checks provider reachability by listing models.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}
