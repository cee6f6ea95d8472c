package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// OllamaProvider implements Provider against a local Ollama server.
type OllamaProvider struct {
	url           string
	model         string
	contextTokens int
	temperature   float32
	client        *http.Client
}

// ollamaChatRequest is the request body for /api/chat
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse is the non-streaming reply of /api/chat
type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	if cfg.URL == "" {
		return nil, ErrUnavailable{Provider: DriverOllama, Reason: "URL not configured"}
	}
	if cfg.Model == "" {
		return nil, ErrUnavailable{Provider: DriverOllama, Reason: "model not configured"}
	}

	url := strings.TrimSuffix(cfg.URL, "/")
	L_debug("llm: ollama provider created", "url", url, "model", cfg.Model, "timeout", cfg.ResolveTimeout())

	return &OllamaProvider{
		url:           url,
		model:         cfg.Model,
		contextTokens: cfg.ContextTokens,
		temperature:   cfg.Temperature,
		client:        &http.Client{Timeout: cfg.ResolveTimeout()},
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return DriverOllama
}

// Model returns the configured model
func (p *OllamaProvider) Model() string {
	return p.model
}

// SimpleMessage sends a non-streaming /api/chat request.
func (p *OllamaProvider) SimpleMessage(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	startTime := time.Now()

	var messages []ollamaChatMessage
	if systemPrompt != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: userMessage})

	reqBody := ollamaChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
	}
	if p.contextTokens > 0 || p.temperature > 0 {
		reqBody.Options = &ollamaOptions{NumCtx: p.contextTokens, Temperature: p.temperature}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := p.url + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	L_info("llm: request started", "provider", DriverOllama, "model", p.model, "chars", len(userMessage)+len(systemPrompt))

	resp, err := p.client.Do(req)
	if err != nil {
		L_error("llm: request failed", "provider", DriverOllama, "error", err)
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		L_error("llm: request failed", "provider", DriverOllama, "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	L_info("llm: request completed", "provider", DriverOllama, "duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", result.PromptEvalCount, "outputTokens", result.EvalCount)
	return result.Message.Content, nil
}
