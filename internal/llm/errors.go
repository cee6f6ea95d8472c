package llm

import (
	"fmt"
	"strings"
)

// ErrorType categorizes provider failures for logs and user-facing messages.
type ErrorType string

const (
	ErrorTypeUnknown         ErrorType = "unknown"
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeOverloaded      ErrorType = "overloaded"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeBilling         ErrorType = "billing"
	ErrorTypeTimeout         ErrorType = "timeout"
)

// errorPattern matches when any of anyOf is in the lowercased
// message, or when all of every group in allOf are.
type errorPattern struct {
	typ   ErrorType
	anyOf []string
	allOf [][]string
}

// errorPatterns is checked in order; the first match wins.
var errorPatterns = []errorPattern{
	{
		typ:   ErrorTypeContextOverflow,
		anyOf: []string{
			"context_length_exceeded", "context length exceeded", "context size has been exceeded",
			"maximum context length", "prompt is too long", "request_too_large",
			"exceeds model context window", "exceeded model token limit",
		},
		allOf: [][]string{{"413", "too large"}},
	},
	{
		typ:   ErrorTypeRateLimit,
		anyOf: []string{
			"429", "rate_limit", "rate limit", "too many requests", "quota exceeded",
			"exceeded your current quota", "requests per minute",
		},
	},
	{
		typ:   ErrorTypeOverloaded,
		anyOf: []string{"overloaded", "server is busy", "temporarily unavailable"},
		allOf: [][]string{{"503", "unavailable"}},
	},
	{
		typ:   ErrorTypeBilling,
		anyOf: []string{"402", "payment required", "insufficient_quota", "insufficient credits", "billing"},
	},
	{
		typ:   ErrorTypeAuth,
		anyOf: []string{
			"401", "403", "unauthorized", "forbidden", "invalid api key", "invalid_api_key",
			"incorrect api key", "authentication", "no api key",
		},
	},
	{
		typ:   ErrorTypeTimeout,
		anyOf: []string{"408", "504", "timeout", "timed out", "deadline exceeded", "connection reset"},
	},
}

func (p errorPattern) matches(lower string) bool {
	for _, frag := range p.anyOf {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	for _, group := range p.allOf {
		all := true
		for _, frag := range group {
			if !strings.Contains(lower, frag) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// ClassifyError determines the error type from an error message.
func ClassifyError(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	lower := strings.ToLower(msg)
	for _, p := range errorPatterns {
		if p.matches(lower) {
			return p.typ
		}
	}
	return ErrorTypeUnknown
}

// FormatErrorForUser returns a short explanation of a provider failure.
func FormatErrorForUser(err error) string {
	if err == nil {
		return ""
	}
	switch ClassifyError(err.Error()) {
	case ErrorTypeContextOverflow:
		return "Too many chats for the model's context window. Use a model with a larger context or set classify.maxPromptTokens."
	case ErrorTypeRateLimit:
		return "The language model is rate limiting requests. Wait a moment and try again."
	case ErrorTypeOverloaded:
		return "The language model service is overloaded. Try again shortly."
	case ErrorTypeAuth:
		return "The language model rejected the API key. Check llm.apiKey or the API key environment variable."
	case ErrorTypeBilling:
		return "The language model account has a billing problem."
	case ErrorTypeTimeout:
		return "The language model did not answer in time."
	default:
		return fmt.Sprintf("Language model error: %v", err)
	}
}
