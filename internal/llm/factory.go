// Package llm - Provider factory
package llm

import "fmt"

// NewProvider creates a provider from config, dispatching on cfg.Driver.
func NewProvider(cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.ResolveDriver() {
	case DriverMistral:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultMistralBaseURL
		}
		if cfg.APIKey == "" {
			return nil, ErrUnavailable{Provider: DriverMistral, Reason: "API key not configured"}
		}
		p, err = wrap(NewOpenAIProvider(DriverMistral, cfg))
	case DriverOpenAI:
		p, err = wrap(NewOpenAIProvider(DriverOpenAI, cfg))
	case DriverAnthropic:
		p, err = wrap(NewAnthropicProvider(cfg))
	case DriverOllama:
		p, err = wrap(NewOllamaProvider(cfg))
	default:
		return nil, fmt.Errorf("unknown provider driver: %s", cfg.Driver)
	}
	return p, err
}

// wrap keeps a failed constructor from yielding a non-nil interface.
func wrap[T Provider](p T, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
