// Package classify asks a language model to label chat list entries and
// maps the free-text reply back onto the entries.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roelfdiedericks/chatsweep/internal/llm"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/scraper"
	"github.com/roelfdiedericks/chatsweep/internal/tokens"
)

// ErrClassificationFailed matches every ClassificationFailedError.
var ErrClassificationFailed = errors.New("classification failed")

// ClassificationFailedError wraps a failed generation call. No partial
// results accompany it.
type ClassificationFailedError struct {
	Err error
}

func (e *ClassificationFailedError) Error() string {
	return "classification failed: " + e.Err.Error()
}

func (e *ClassificationFailedError) Unwrap() []error {
	return []error{ErrClassificationFailed, e.Err}
}

// Generator produces text for a prompt. llm.Provider satisfies it.
type Generator interface {
	SimpleMessage(ctx context.Context, userMessage, systemPrompt string) (string, error)
}

// Config holds classifier configuration
type Config struct {
	Categories      []string `toml:"categories"`      // Labels the model may answer with
	Hints           []string `toml:"hints"`           // Extra guidance appended to the instructions
	MaxPromptTokens int      `toml:"maxPromptTokens"` // Entries beyond this budget are left out (0 = no limit)
}

// DefaultConfig returns the default classifier configuration
func DefaultConfig() Config {
	return Config{
		Categories: []string{"genuine", "promotional", "spam", "unknown"},
		Hints: []string{
			"When the message content is in Hinglish it is more likely to be genuine.",
			"Messages that only mention an image or photo are usually genuine.",
		},
	}
}

// Classifier labels entries through a Generator.
type Classifier struct {
	gen    Generator
	config Config
}

// New creates a classifier.
func New(gen Generator, cfg Config) *Classifier {
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultConfig().Categories
	}
	return &Classifier{gen: gen, config: cfg}
}

// Classify sends all entries in one request and returns the parsed labels
// joined to their entries, in reply order. An empty input makes no request.
func (c *Classifier) Classify(ctx context.Context, entries []scraper.ListEntry) ([]Result, error) {
	if len(entries) == 0 {
		L_info("classify: nothing to classify")
		return []Result{}, nil
	}

	start := time.Now()
	system := SystemPrompt(c.config)
	included := c.fit(system, entries)
	user, err := UserPrompt(included)
	if err != nil {
		return nil, &ClassificationFailedError{Err: err}
	}

	L_info("classify: requesting labels", "entries", len(included), "estimatedTokens", tokens.Estimate(system)+tokens.Estimate(user))

	reply, err := c.gen.SimpleMessage(ctx, user, system)
	if err != nil {
		L_error("classify: generator failed", "errorType", llm.ClassifyError(err.Error()), "error", err)
		return nil, &ClassificationFailedError{Err: err}
	}

	pairs, dropped := ParseResponse(reply)
	if dropped > 0 {
		L_debug("classify: dropped malformed fragments", "count", dropped)
	}
	L_trace("classify: raw reply", "text", reply)

	results := Join(pairs, entries)
	L_elapsed(start, "classify: labels parsed", "results", len(results), "dropped", dropped)
	return results, nil
}

// fit returns the longest prefix of entries whose prompt stays within
// MaxPromptTokens.
func (c *Classifier) fit(system string, entries []scraper.ListEntry) []scraper.ListEntry {
	budget := c.config.MaxPromptTokens
	if budget <= 0 {
		return entries
	}
	used := tokens.Estimate(system) + tokens.Estimate(userPreamble)
	for i, e := range entries {
		raw, _ := json.Marshal(e)
		used += tokens.Estimate(string(raw))
		if used > budget {
			L_warn("classify: prompt budget reached, leaving entries out", "included", i, "skipped", len(entries)-i, "maxPromptTokens", budget)
			return entries[:i]
		}
	}
	return entries
}

// SystemPrompt builds the instruction contract for the model.
func SystemPrompt(cfg Config) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant trained to classify chat messages as ")
	sb.WriteString(joinOptions(cfg.Categories))
	sb.WriteString(".\n")
	sb.WriteString("For every chat, answer with exactly one line of the form `name : category`, ")
	sb.WriteString("using one of the categories above. Return nothing else.\n")
	sb.WriteString("Example:\nAmit : genuine\nFlipkart : promotional\nJio : promotional\n+91 97634556662 : spam\n")
	for _, h := range cfg.Hints {
		sb.WriteString(h)
		sb.WriteString("\n")
	}
	return sb.String()
}

const userPreamble = "Classify these chats. Each has a name, the last message and its time:\n"

// UserPrompt serializes entries for the model.
func UserPrompt(entries []scraper.ListEntry) (string, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode entries: %w", err)
	}
	return userPreamble + string(raw), nil
}

func joinOptions(opts []string) string {
	switch len(opts) {
	case 0:
		return ""
	case 1:
		return opts[0]
	}
	return strings.Join(opts[:len(opts)-1], ", ") + " or " + opts[len(opts)-1]
}
