// Package cdp defines the remote browser control channel used by chatsweep
// and implements it on top of go-rod.
//
// Everything above this package talks to Connection, Surface and Element
// only, so the scraping and deletion flows can be exercised without a
// running browser.
package cdp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrElementNotFound is returned when a lookup finished without a match.
	ErrElementNotFound = errors.New("element not found")

	// ErrTimeout is returned when a bounded wait exceeded its deadline.
	ErrTimeout = errors.New("timed out")
)

// Dialer opens a control channel to an already running browser.
type Dialer interface {
	Dial(ctx context.Context, controlURL string) (Connection, error)
}

// Connection is a live control channel to one browser process.
type Connection interface {
	// Surfaces lists the existing page targets (tabs).
	Surfaces() ([]Surface, error)
	// NewSurface opens a new blank tab.
	NewSurface() (Surface, error)
	// Disconnect drops the control channel without closing the browser.
	Disconnect() error
}

// Surface is one controllable browsing context (a tab).
// A Surface must not be driven from two goroutines at once.
type Surface interface {
	// URL returns the current location, or "" if it cannot be read.
	URL() string
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	BringToFront() error

	// Evaluate runs a JS function expression inside the page and decodes
	// its JSON result into out (out may be nil).
	Evaluate(ctx context.Context, script string, out any, args ...any) error

	// WaitFor waits up to timeout for selector to match and returns the
	// first match.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// QueryAll returns all current matches of selector without waiting.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// FindByText waits up to timeout for an element matching selector whose
	// text equals text (surrounding whitespace ignored).
	FindByText(ctx context.Context, selector, text string, timeout time.Duration) (Element, error)
}

// Element is a handle to a node inside a Surface.
type Element interface {
	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
}
