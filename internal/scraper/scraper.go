// Package scraper reads the complete chat list out of a virtualized,
// scroll-rendered list by stepping through it and merging each frame.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/roelfdiedericks/chatsweep/internal/cdp"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// extractScript returns the rendered rows. Status markers such as
// "status-dblcheck" leak into the preview text and are stripped.
const extractScript = `(itemSel, nameSel, previewSel, timeSel) => {
	const out = [];
	for (const item of document.querySelectorAll(itemSel)) {
		const name = item.querySelector(nameSel);
		if (!name) continue;
		const preview = item.querySelector(previewSel);
		const time = item.querySelector(timeSel);
		const msg = preview ? (preview.textContent || '').trim() : '';
		out.push({
			name: (name.textContent || '').trim(),
			msg: msg.replace(/status-[a-z]+/g, '').trim(),
			time: time ? (time.textContent || '').trim() : '',
		});
	}
	return out;
}`

const measureScript = `(sel) => {
	const s = document.querySelector(sel);
	if (!s) return { present: false };
	return { present: true, scrollTop: s.scrollTop, scrollHeight: s.scrollHeight, clientHeight: s.clientHeight };
}`

// scrollScript moves the container and reports where the browser actually
// put it, which may be clamped.
const scrollScript = `(sel, top) => {
	const s = document.querySelector(sel);
	if (!s) return { present: false };
	s.scrollTop = top;
	return { present: true, scrollTop: s.scrollTop, scrollHeight: s.scrollHeight, clientHeight: s.clientHeight };
}`

// ScrollMetrics is the geometry of the scroll container.
type ScrollMetrics struct {
	Present      bool    `json:"present"`
	ScrollTop    float64 `json:"scrollTop"`
	ScrollHeight float64 `json:"scrollHeight"`
	ClientHeight float64 `json:"clientHeight"`
}

// Remaining is the distance left below the viewport.
func (m ScrollMetrics) Remaining() float64 {
	return m.ScrollHeight - (m.ScrollTop + m.ClientHeight)
}

// HasMore reports whether content remains below the viewport. An absent
// container has nothing more.
func (m ScrollMetrics) HasMore() bool {
	return m.Present && m.ScrollTop+m.ClientHeight < m.ScrollHeight
}

// nextScroll returns the scrollTop for the next pass: snap to the bottom
// when less than one viewport remains, otherwise advance by ratio of a
// viewport.
func nextScroll(m ScrollMetrics, ratio float64) float64 {
	remaining := m.Remaining()
	if remaining > 0 && remaining < m.ClientHeight {
		return m.ScrollHeight - m.ClientHeight
	}
	return m.ScrollTop + m.ClientHeight*ratio
}

// Progress describes one completed extraction pass.
type Progress struct {
	Pass    int `json:"pass"`
	Visible int `json:"visible"`
	Added   int `json:"added"`
	Total   int `json:"total"`
}

// ProgressFunc is called after every pass.
type ProgressFunc func(Progress)

// Scraper walks the chat list of a surface.
type Scraper struct {
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a scraper.
func New(cfg Config) *Scraper {
	return &Scraper{config: cfg, sleep: sleepCtx}
}

// ScrapeAll scrolls the list from its current position to the end and
// returns every distinct entry in first-seen order. A missing scroll
// container ends the walk after the first pass; an empty list yields no
// entries and no error.
func (s *Scraper) ScrapeAll(ctx context.Context, surface cdp.Surface, progress ProgressFunc) ([]ListEntry, error) {
	start := time.Now()
	acc := NewAccumulator()
	ratio := s.config.ResolveStepRatio()
	maxSteps := s.config.ResolveMaxSteps()
	settle := s.config.ResolveSettleDelay()

	final := false
	for pass := 1; ; pass++ {
		visible, err := s.extract(ctx, surface)
		if err != nil {
			return nil, err
		}
		added := acc.Merge(visible)
		L_debug("scraper: pass complete", "pass", pass, "visible", len(visible), "added", added, "total", acc.Len())
		if progress != nil {
			progress(Progress{Pass: pass, Visible: len(visible), Added: added, Total: acc.Len()})
		}

		if final {
			break
		}
		if pass >= maxSteps {
			L_warn("scraper: stopping at pass limit", "maxSteps", maxSteps, "total", acc.Len())
			break
		}

		before, err := s.measure(ctx, surface)
		if err != nil {
			return nil, err
		}
		if !before.Present {
			// Indistinguishable from a list that is not mounted yet.
			L_warn("scraper: scroll container not found, treating list as complete", "selector", s.config.Selectors.Scroller)
			break
		}

		after, err := s.scrollTo(ctx, surface, nextScroll(before, ratio))
		if err != nil {
			return nil, err
		}
		L_trace("scraper: scrolled", "from", before.ScrollTop, "to", after.ScrollTop, "height", after.ScrollHeight, "remaining", before.Remaining())

		if !after.Present || after.ScrollTop == before.ScrollTop {
			L_debug("scraper: cannot scroll further")
			break
		}

		// One more extraction after the last move picks up the bottom frame.
		final = !after.HasMore()
		if err := s.sleep(ctx, settle); err != nil {
			return nil, err
		}
	}

	L_elapsed(start, "scraper: chat list extracted", "entries", acc.Len())
	return acc.Entries(), nil
}

func (s *Scraper) extract(ctx context.Context, surface cdp.Surface) ([]ListEntry, error) {
	sel := s.config.Selectors
	var rows []ListEntry
	if err := surface.Evaluate(ctx, extractScript, &rows, sel.ChatItem, sel.Name, sel.Preview, sel.Time); err != nil {
		return nil, fmt.Errorf("failed to extract chat rows: %w", err)
	}
	return rows, nil
}

func (s *Scraper) measure(ctx context.Context, surface cdp.Surface) (ScrollMetrics, error) {
	var m ScrollMetrics
	if err := surface.Evaluate(ctx, measureScript, &m, s.config.Selectors.Scroller); err != nil {
		return m, fmt.Errorf("failed to measure chat list: %w", err)
	}
	return m, nil
}

func (s *Scraper) scrollTo(ctx context.Context, surface cdp.Surface, top float64) (ScrollMetrics, error) {
	var m ScrollMetrics
	if err := surface.Evaluate(ctx, scrollScript, &m, s.config.Selectors.Scroller, top); err != nil {
		return m, fmt.Errorf("failed to scroll chat list: %w", err)
	}
	return m, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
