package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/tokens"
)

// OpenAIProvider talks to OpenAI-compatible chat completion APIs: OpenAI
// itself, Mistral, LM Studio and similar servers selected via BaseURL.
type OpenAIProvider struct {
	name          string
	client        *openai.Client
	model         string
	maxTokens     int
	contextTokens int
	temperature   float32
	baseURL       string
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
// The API key is optional for local servers.
func NewOpenAIProvider(name string, cfg Config) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, ErrUnavailable{Provider: name, Reason: "model not configured"}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}

	config := openai.DefaultConfig(apiKey)
	baseURL := cfg.BaseURL
	if baseURL != "" {
		// Ensure the URL ends with /v1 for OpenAI-compatible APIs
		if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.ResolveTimeout()}

	displayURL := baseURL
	if displayURL == "" {
		displayURL = "(default)"
	}
	L_debug("llm: openai provider created", "name", name, "baseURL", displayURL, "model", cfg.Model, "maxTokens", cfg.ResolveMaxTokens())

	return &OpenAIProvider{
		name:          name,
		client:        openai.NewClientWithConfig(config),
		model:         cfg.Model,
		maxTokens:     cfg.ResolveMaxTokens(),
		contextTokens: cfg.ContextTokens,
		temperature:   cfg.Temperature,
		baseURL:       baseURL,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the configured model
func (p *OpenAIProvider) Model() string {
	return p.model
}

// SimpleMessage sends a single non-streaming chat completion.
func (p *OpenAIProvider) SimpleMessage(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	startTime := time.Now()

	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})

	estimated := tokens.Estimate(systemPrompt) + tokens.Estimate(userMessage)
	maxTokens := tokens.CapMaxTokens(p.maxTokens, p.contextTokens, estimated, 100)

	L_info("llm: request started", "provider", p.name, "model", p.model, "estimatedTokens", estimated)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			L_error("llm: request failed", "provider", p.name, "status", apiErr.HTTPStatusCode, "type", ClassifyError(err.Error()), "error", apiErr.Message)
		} else {
			L_error("llm: request failed", "provider", p.name, "type", ClassifyError(err.Error()), "error", err)
		}
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.name)
	}

	text := resp.Choices[0].Message.Content
	L_info("llm: request completed", "provider", p.name, "duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", resp.Usage.PromptTokens, "outputTokens", resp.Usage.CompletionTokens, "responseChars", len(text))
	return text, nil
}
