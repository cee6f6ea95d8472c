// Package tokens estimates prompt sizes with tiktoken.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// DefaultEncoding is cl100k_base. It is close enough for Mistral, Claude
// and Llama prompts to size a request.
const DefaultEncoding = "cl100k_base"

// Estimator counts tokens, falling back to chars/4 without an encoding.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the shared estimator.
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		var err error
		globalEstimator, err = New()
		if err != nil {
			L_warn("tokens: failed to load encoding, estimating by length", "error", err)
			globalEstimator = &Estimator{}
		}
	})
	return globalEstimator
}

// New creates an estimator with DefaultEncoding.
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Count returns the token count of text.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Truncate cuts text to at most max tokens. The second result reports
// whether anything was removed.
func (e *Estimator) Truncate(text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	if e == nil || e.encoding == nil {
		if len(text) <= max*4 {
			return text, false
		}
		return text[:max*4], true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	toks := e.encoding.Encode(text, nil, nil)
	if len(toks) <= max {
		return text, false
	}
	return e.encoding.Decode(toks[:max]), true
}

// Estimate counts text with the shared estimator.
func Estimate(text string) int {
	return Get().Count(text)
}

// SafetyMargin pads estimates for tokenizers that count differently.
const SafetyMargin = 1.2

// CapMaxTokens returns an output limit that leaves room for the input:
// min(requestedMax, contextWindow - estimatedInput*SafetyMargin - buffer),
// never below 100. A zero contextWindow returns requestedMax unchanged.
func CapMaxTokens(requestedMax, contextWindow, estimatedInput, buffer int) int {
	if contextWindow <= 0 {
		return requestedMax
	}
	available := contextWindow - int(float64(estimatedInput)*SafetyMargin) - buffer
	if available < 100 {
		available = 100
	}
	if requestedMax > 0 && requestedMax < available {
		return requestedMax
	}
	return available
}
