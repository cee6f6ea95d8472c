// Package cdptest provides in-memory fakes of the cdp interfaces for tests.
package cdptest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roelfdiedericks/chatsweep/internal/cdp"
)

// Dialer is a scripted cdp.Dialer.
type Dialer struct {
	mu sync.Mutex

	// FailFirst makes the first N dials fail with Err (or a default error).
	FailFirst int
	// Err is returned for failing dials. With FailFirst == 0 and Err set,
	// every dial fails.
	Err error
	// Conn is returned on success; a fresh Connection is created when nil.
	Conn *Connection
	// Delay simulates a slow handshake.
	Delay time.Duration

	Attempts int
	URLs     []string
}

func (d *Dialer) Dial(ctx context.Context, controlURL string) (cdp.Connection, error) {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.Attempts++
	d.URLs = append(d.URLs, controlURL)

	failing := d.Attempts <= d.FailFirst || (d.FailFirst == 0 && d.Err != nil)
	if failing {
		if d.Err != nil {
			return nil, d.Err
		}
		return nil, fmt.Errorf("dial %s: connection refused", controlURL)
	}
	if d.Conn == nil {
		d.Conn = &Connection{}
	}
	return d.Conn, nil
}

// AttemptCount returns the number of Dial calls so far.
func (d *Dialer) AttemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Attempts
}

// Connection is an in-memory cdp.Connection.
type Connection struct {
	mu sync.Mutex

	Pages         []*Surface
	ListErr       error
	DisconnectErr error

	Created      int
	Disconnected int
}

func (c *Connection) Surfaces() ([]cdp.Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	out := make([]cdp.Surface, 0, len(c.Pages))
	for _, p := range c.Pages {
		out = append(out, p)
	}
	return out, nil
}

func (c *Connection) NewSurface() (cdp.Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &Surface{Location: "about:blank"}
	c.Pages = append(c.Pages, s)
	c.Created++
	return s, nil
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Disconnected++
	return c.DisconnectErr
}

// Surface is an in-memory cdp.Surface. Elements are looked up by the exact
// selector string used by the caller.
type Surface struct {
	mu sync.Mutex

	Location string
	Elements map[string][]*Element

	// EvalFunc answers Evaluate calls. Its result is JSON round-tripped into out.
	EvalFunc func(script string, args []any) (any, error)
	// ReloadFunc runs on every Reload.
	ReloadFunc func() error

	Fronted     int
	Reloads     int
	Navigations []string
	Waits       []string
}

// Add registers elements under selector.
func (s *Surface) Add(selector string, els ...*Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Elements == nil {
		s.Elements = make(map[string][]*Element)
	}
	s.Elements[selector] = append(s.Elements[selector], els...)
}

// Remove drops every element under selector whose label equals label.
func (s *Surface) Remove(selector, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Elements == nil {
		return
	}
	kept := s.Elements[selector][:0]
	for _, el := range s.Elements[selector] {
		if el.Label != label {
			kept = append(kept, el)
		}
	}
	s.Elements[selector] = kept
}

func (s *Surface) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Location
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Location = url
	s.Navigations = append(s.Navigations, url)
	return nil
}

func (s *Surface) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.Reloads++
	fn := s.ReloadFunc
	s.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (s *Surface) BringToFront() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fronted++
	return nil
}

func (s *Surface) Evaluate(ctx context.Context, script string, out any, args ...any) error {
	s.mu.Lock()
	fn := s.EvalFunc
	s.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("no evaluator configured")
	}
	v, err := fn(script, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Surface) WaitFor(ctx context.Context, selector string, timeout time.Duration) (cdp.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Waits = append(s.Waits, selector)
	if els := s.Elements[selector]; len(els) > 0 {
		return els[0], nil
	}
	return nil, fmt.Errorf("%w waiting for %s", cdp.ErrTimeout, selector)
}

func (s *Surface) QueryAll(ctx context.Context, selector string) ([]cdp.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cdp.Element, 0, len(s.Elements[selector]))
	for _, el := range s.Elements[selector] {
		out = append(out, el)
	}
	return out, nil
}

func (s *Surface) FindByText(ctx context.Context, selector, text string, timeout time.Duration) (cdp.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Waits = append(s.Waits, selector+"="+text)
	for _, el := range s.Elements[selector] {
		if strings.TrimSpace(el.Label) == strings.TrimSpace(text) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w waiting for %s with text %q", cdp.ErrTimeout, selector, text)
}

// Element is an in-memory cdp.Element.
type Element struct {
	mu sync.Mutex

	Label   string
	OnClick func() error

	Clicks int
	Inputs []string
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	e.Clicks++
	fn := e.OnClick
	e.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (e *Element) Input(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Inputs = append(e.Inputs, text)
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.Label, nil
}

// ClickCount returns how often the element was clicked.
func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clicks
}
