package llm

import (
	"strings"
	"time"
)

// Driver names accepted in [llm] driver.
const (
	DriverMistral   = "mistral"
	DriverOpenAI    = "openai"
	DriverAnthropic = "anthropic"
	DriverOllama    = "ollama"
)

// DefaultMistralBaseURL is the OpenAI-compatible Mistral endpoint.
const DefaultMistralBaseURL = "https://api.mistral.ai/v1"

// Config is the [llm] section.
type Config struct {
	Driver         string  `toml:"driver"`         // "mistral", "openai", "anthropic", "ollama"
	Model          string  `toml:"model"`          // Model or fine-tune id
	APIKey         string  `toml:"apiKey"`         // For cloud providers
	BaseURL        string  `toml:"baseURL"`        // For OpenAI-compatible and Anthropic-compatible endpoints
	URL            string  `toml:"url"`            // For Ollama
	MaxTokens      int     `toml:"maxTokens"`      // Output limit
	ContextTokens  int     `toml:"contextTokens"`  // Context window used to cap output (0 = driver default)
	Temperature    float32 `toml:"temperature"`    // Sampling temperature (0 = provider default)
	TimeoutSeconds int     `toml:"timeoutSeconds"` // Request timeout
}

// DefaultConfig returns a Mistral configuration matching the hosted API.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverMistral,
		Model:          "open-mistral-7b",
		BaseURL:        DefaultMistralBaseURL,
		URL:            "http://127.0.0.1:11434",
		MaxTokens:      2048,
		TimeoutSeconds: 120,
	}
}

// ResolveDriver returns the lower-cased driver name, defaulting to mistral.
func (c *Config) ResolveDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return DriverMistral
	}
	return d
}

// ResolveTimeout returns the request timeout, defaulting to 120s.
func (c *Config) ResolveTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveMaxTokens returns the output limit, defaulting to 2048.
func (c *Config) ResolveMaxTokens() int {
	if c.MaxTokens <= 0 {
		return 2048
	}
	return c.MaxTokens
}
