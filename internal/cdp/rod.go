package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// RodDialer connects to an existing Chrome through go-rod.
type RodDialer struct {
	// Stealth opens new tabs with go-rod/stealth evasions applied.
	Stealth bool
}

// Dial connects to controlURL. The connection gets its own background
// context so it outlives the request that created it; Disconnect cancels it.
func (d RodDialer) Dial(ctx context.Context, controlURL string) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	browser := rod.New().ControlURL(controlURL).Context(connCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to %s: %w", controlURL, err)
	}

	L_debug("cdp: connected", "controlURL", controlURL)
	return &rodConnection{browser: browser, cancel: cancel, stealth: d.Stealth}, nil
}

type rodConnection struct {
	browser *rod.Browser
	cancel  context.CancelFunc
	stealth bool
}

func (c *rodConnection) Surfaces() ([]Surface, error) {
	pages, err := c.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate pages: %w", err)
	}
	surfaces := make([]Surface, 0, len(pages))
	for _, p := range pages {
		surfaces = append(surfaces, &rodSurface{page: p})
	}
	return surfaces, nil
}

func (c *rodConnection) NewSurface() (Surface, error) {
	var (
		page *rod.Page
		err  error
	)
	if c.stealth {
		page, err = stealth.Page(c.browser)
	} else {
		page, err = c.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &rodSurface{page: page}, nil
}

// Disconnect closes the websocket only. Browser.Close would terminate the
// user's Chrome, which we do not own.
func (c *rodConnection) Disconnect() error {
	if c.cancel == nil {
		return errors.New("connection already closed")
	}
	c.cancel()
	c.cancel = nil
	return nil
}

type rodSurface struct {
	page *rod.Page
}

func (s *rodSurface) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *rodSurface) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", mapErr(err, url))
	}
	if err := page.WaitLoad(); err != nil {
		L_warn("cdp: WaitLoad failed after navigate", "url", url, "error", err)
	}
	return nil
}

func (s *rodSurface) Reload(ctx context.Context) error {
	page := s.page.Context(ctx)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload failed: %w", mapErr(err, "reload"))
	}
	if err := page.WaitLoad(); err != nil {
		L_warn("cdp: WaitLoad failed after reload", "error", err)
	}
	return nil
}

func (s *rodSurface) BringToFront() error {
	_, err := s.page.Activate()
	return err
}

func (s *rodSurface) Evaluate(ctx context.Context, script string, out any, args ...any) error {
	res, err := s.page.Context(ctx).Eval(script, args...)
	if err != nil {
		return fmt.Errorf("JavaScript error: %w", mapErr(err, "evaluate"))
	}
	if out == nil || res == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to read eval result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (s *rodSurface) WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	el, err := s.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, mapErr(err, selector)
	}
	return &rodElement{el: el.CancelTimeout()}, nil
}

func (s *rodSurface) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, mapErr(err, selector)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (s *rodSurface) FindByText(ctx context.Context, selector, text string, timeout time.Duration) (Element, error) {
	pattern := `^\s*` + regexp.QuoteMeta(text) + `\s*$`
	el, err := s.page.Context(ctx).Timeout(timeout).ElementR(selector, pattern)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("%s with text %q", selector, text))
	}
	return &rodElement{el: el.CancelTimeout()}, nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		L_debug("cdp: failed to scroll into view", "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", mapErr(err, "click"))
	}
	return nil
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	if err := e.el.Context(ctx).Input(text); err != nil {
		return fmt.Errorf("input failed: %w", mapErr(err, "input"))
	}
	return nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

// mapErr folds rod's wait failures into ErrTimeout / ErrElementNotFound.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var notFound *rod.ElementNotFoundError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w waiting for %s", ErrTimeout, what)
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %s", ErrElementNotFound, what)
	default:
		return err
	}
}
