package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/tokens"
)

// anthropicContextTokens is the context window of current Claude models.
const anthropicContextTokens = 200000

// AnthropicProvider implements Provider for Anthropic's Messages API.
// Also works with Anthropic-compatible APIs via BaseURL.
type AnthropicProvider struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnavailable{Provider: DriverAnthropic, Reason: "API key not configured"}
	}
	if cfg.Model == "" {
		return nil, ErrUnavailable{Provider: DriverAnthropic, Reason: "model not configured"}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.ResolveTimeout()}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "(default)"
	}
	L_debug("llm: anthropic provider created", "baseURL", baseURL, "model", cfg.Model, "maxTokens", cfg.ResolveMaxTokens())

	return &AnthropicProvider{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   cfg.ResolveMaxTokens(),
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return DriverAnthropic
}

// Model returns the configured model
func (p *AnthropicProvider) Model() string {
	return p.model
}

// SimpleMessage sends one non-streaming Messages request.
func (p *AnthropicProvider) SimpleMessage(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	startTime := time.Now()

	estimated := tokens.Estimate(systemPrompt) + tokens.Estimate(userMessage)
	maxTokens := tokens.CapMaxTokens(p.maxTokens, anthropicContextTokens, estimated, 100)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(float64(p.temperature))
	}

	L_info("llm: request started", "provider", DriverAnthropic, "model", p.model, "estimatedTokens", estimated)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		L_error("llm: request failed", "provider", DriverAnthropic, "type", ClassifyError(err.Error()), "error", err)
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}

	text := sb.String()
	L_info("llm: request completed", "provider", DriverAnthropic, "duration", time.Since(startTime).Round(time.Millisecond),
		"inputTokens", message.Usage.InputTokens, "outputTokens", message.Usage.OutputTokens, "stopReason", message.StopReason)
	return text, nil
}
